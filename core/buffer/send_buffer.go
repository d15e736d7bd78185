// File: core/buffer/send_buffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One queued unit of outbound data: raw bytes, or response header plus a
// file-backed body. The send path drains it through Chunk/Advance and the
// owning queue destroys it exactly once, in FIFO order.

package buffer

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/momentics/hioload-epoll/api"
)

// SendBuffer is a single outbound payload with a monotonically increasing
// cursor. It belongs to exactly one connection's send queue.
type SendBuffer struct {
	head       []byte // in-memory payload, or the header of a file response
	file       *os.File
	filePath   string
	fileSize   int64
	autoRemove bool

	cursor  int64
	scratch []byte // chunk staging for file reads, sized lazily

	logger api.AccessLogger
}

// NewSendBuffer wraps an in-memory payload. The logger may be nil when the
// payload is not an access-logged response.
func NewSendBuffer(data []byte, logger api.AccessLogger) *SendBuffer {
	return &SendBuffer{head: data, logger: logger}
}

// NewFileSendBuffer wraps a header plus a file-backed body. When autoRemove
// is set the backing file is deleted once the buffer is released.
func NewFileSendBuffer(header []byte, path string, autoRemove bool, logger api.AccessLogger) (*SendBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("send buffer: open body %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("send buffer: stat body %s: %w", path, err)
	}
	return &SendBuffer{
		head:       header,
		file:       f,
		filePath:   path,
		fileSize:   st.Size(),
		autoRemove: autoRemove,
		logger:     logger,
	}, nil
}

// Total reports the full payload length: header plus body for file-backed
// buffers, or the in-memory length.
func (s *SendBuffer) Total() int64 {
	return int64(len(s.head)) + s.fileSize
}

// Remaining reports unsent bytes.
func (s *SendBuffer) Remaining() int64 {
	if r := s.Total() - s.cursor; r > 0 {
		return r
	}
	return 0
}

// AtEnd reports whether the cursor has consumed the entire payload.
func (s *SendBuffer) AtEnd() bool {
	return s.cursor >= s.Total()
}

// Chunk returns the next unsent slice, at most max bytes. An empty slice
// with nil error means the payload is fully consumed. The slice is valid
// until the next Chunk call.
func (s *SendBuffer) Chunk(max int) ([]byte, error) {
	if max <= 0 || s.AtEnd() {
		return nil, nil
	}
	if s.cursor < int64(len(s.head)) {
		end := s.cursor + int64(max)
		if end > int64(len(s.head)) {
			end = int64(len(s.head))
		}
		return s.head[s.cursor:end], nil
	}

	off := s.cursor - int64(len(s.head))
	n := s.fileSize - off
	if n > int64(max) {
		n = int64(max)
	}
	if cap(s.scratch) < int(n) {
		s.scratch = make([]byte, n)
	}
	read, err := s.file.ReadAt(s.scratch[:n], off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("send buffer: read body %s: %w", s.filePath, err)
	}
	return s.scratch[:read], nil
}

// Advance moves the cursor forward after n bytes were transmitted.
func (s *SendBuffer) Advance(n int) {
	s.cursor += int64(n)
}

// Logger returns the associated access-log accumulator, possibly nil.
func (s *SendBuffer) Logger() api.AccessLogger {
	return s.logger
}

// AddResponseBytes adds transmitted bytes to the logger accumulator.
func (s *SendBuffer) AddResponseBytes(n int64) {
	if s.logger != nil {
		s.logger.SetResponseBytes(s.logger.ResponseBytes() + n)
	}
}

// MarkFailed stamps the failure sentinel on the logger accumulator.
func (s *SendBuffer) MarkFailed() {
	if s.logger != nil {
		s.logger.SetResponseBytes(api.ResponseBytesFailure)
	}
}

// FlushLog persists the access-log record, if any.
func (s *SendBuffer) FlushLog() {
	if s.logger != nil {
		s.logger.Write()
	}
}

// Release closes the backing file and removes it when auto-remove was
// requested. Safe to call more than once.
func (s *SendBuffer) Release() {
	if s.file != nil {
		s.file.Close()
		s.file = nil
		if s.autoRemove {
			os.Remove(s.filePath)
		}
	}
	s.head = nil
	s.scratch = nil
}
