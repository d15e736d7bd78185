// File: internal/trace/trace.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Leveled diagnostic logging for the engine. Debug output is off by
// default; the access log is a separate subsystem and never routes here.

package trace

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

// Level controls which diagnostics are emitted.
type Level int32

const (
	LevelDebug Level = iota
	LevelWarn
	LevelError
)

var (
	level  atomic.Int32
	logger atomic.Pointer[log.Logger]
)

func init() {
	level.Store(int32(LevelWarn))
	logger.Store(log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds))
}

// SetLevel sets the minimum emitted level.
func SetLevel(l Level) {
	level.Store(int32(l))
}

// SetOutput replaces the destination logger.
func SetOutput(l *log.Logger) {
	logger.Store(l)
}

func emit(l Level, tag, format string, args ...any) {
	if int32(l) < level.Load() {
		return
	}
	logger.Load().Output(3, tag+" "+fmt.Sprintf(format, args...))
}

// Debugf emits a debug-level diagnostic.
func Debugf(format string, args ...any) {
	emit(LevelDebug, "DEBUG", format, args...)
}

// Warnf emits a warning-level diagnostic.
func Warnf(format string, args ...any) {
	emit(LevelWarn, "WARN", format, args...)
}

// Errorf emits an error-level diagnostic.
func Errorf(format string, args ...any) {
	emit(LevelError, "ERROR", format, args...)
}
