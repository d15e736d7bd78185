// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package control carries the engine's runtime configuration and metrics.
package control
