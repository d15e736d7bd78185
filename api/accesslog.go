// File: api/accesslog.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Access-log accumulator contract used by the send path for byte accounting.

package api

// ResponseBytesFailure marks a record whose response could not be fully
// transmitted (peer reset or terminal send error).
const ResponseBytesFailure = -1

// AccessLogger accumulates per-response transfer accounting and persists one
// record per completed (or abandoned) outbound buffer.
type AccessLogger interface {
	// ResponseBytes reports bytes transmitted so far, or
	// ResponseBytesFailure after a terminal send error.
	ResponseBytes() int64

	// SetResponseBytes overwrites the transmitted byte count.
	SetResponseBytes(n int64)

	// Write flushes the finished record to the underlying log.
	Write()
}
