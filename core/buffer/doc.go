// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package buffer implements the two per-connection byte containers of the
// engine: the growable receive arena filled by the reactor and drained by
// protocol layers, and the queued outbound send buffer with an optional
// file-backed payload.
package buffer
