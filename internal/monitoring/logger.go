// Package monitoring holds the process-level logger shared by the tracker
// packages. Per-package ops/diag/trace streams live in each package's
// debug.go; this logger is for messages that belong to a run as a whole.
package monitoring

import (
	"fmt"
	"log"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// TrackLogf returns a logger that tags every message with the track ID.
// The returned function resolves Logf at call time, so a later SetLogger
// also redirects loggers handed out earlier.
func TrackLogf(trackID string) func(format string, v ...interface{}) {
	prefix := fmt.Sprintf("[track %s] ", trackID)
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
