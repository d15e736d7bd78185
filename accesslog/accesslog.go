// File: accesslog/accesslog.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-response access-log records and the shared append-only writer behind
// them. A record accumulates the transmitted byte count while the send path
// drains its buffer, then flushes exactly once.

package accesslog

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/momentics/hioload-epoll/api"
)

// Writer serializes access-log lines onto one destination.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
	c   io.Closer
}

// NewWriter wraps an arbitrary destination, typically for tests.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Open creates or appends to the log file at path.
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("accesslog: open %s: %w", path, err)
	}
	return &Writer{out: f, c: f}, nil
}

// Close closes the underlying file when the writer owns one.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.c == nil {
		return nil
	}
	err := w.c.Close()
	w.c = nil
	w.out = nil
	return err
}

func (w *Writer) writeLine(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		return
	}
	io.WriteString(w.out, line+"\n")
}

// Logger is one pending access-log record. It satisfies api.AccessLogger
// and is mutated only by the reactor goroutine that drains its buffer.
type Logger struct {
	w *Writer

	Timestamp  time.Time
	RemoteHost string
	Request    string
	StatusCode int

	responseBytes int64
	written       bool
}

var _ api.AccessLogger = (*Logger)(nil)

// NewLogger starts a record stamped with the current time.
func NewLogger(w *Writer, remoteHost, request string) *Logger {
	return &Logger{
		w:          w,
		Timestamp:  time.Now(),
		RemoteHost: remoteHost,
		Request:    request,
	}
}

// ResponseBytes reports the accumulated transmitted byte count.
func (l *Logger) ResponseBytes() int64 {
	return l.responseBytes
}

// SetResponseBytes overwrites the transmitted byte count. The failure
// sentinel api.ResponseBytesFailure marks an aborted response.
func (l *Logger) SetResponseBytes(n int64) {
	l.responseBytes = n
}

// Write flushes the record. Later calls are ignored so a buffer finalized
// through both the completion and teardown paths logs once.
func (l *Logger) Write() {
	if l == nil || l.written || l.w == nil {
		return
	}
	l.written = true

	sent := "-"
	if l.responseBytes != api.ResponseBytesFailure {
		sent = strconv.FormatInt(l.responseBytes, 10)
	}
	l.w.writeLine(fmt.Sprintf("%s - - [%s] %q %d %s",
		l.RemoteHost,
		l.Timestamp.Format("02/Jan/2006:15:04:05 -0700"),
		l.Request,
		l.StatusCode,
		sent,
	))
}
