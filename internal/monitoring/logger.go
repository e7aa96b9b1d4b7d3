// Package monitoring provides the diagnostic logging surface shared by every
// subsystem: sensor sources, the dispatcher, the three filters, and
// persistence. It intentionally stays a thin wrapper over log.Printf so
// tests can redirect or silence it without touching call sites.
package monitoring

import "log"

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

// Diagf logs per-event detail: restarts, rejections, snaps, incident
// triggers. These are the records the external post-drive analyzer expects
// (spec.md §4.6 diagnostics).
func Diagf(format string, v ...interface{}) {
	Logf("[diag] "+format, v...)
}

// Opsf logs operator-facing warnings and errors: persistence I/O failures,
// malformed frames, queue saturation warnings. Always on.
func Opsf(format string, v ...interface{}) {
	Logf("[ops] "+format, v...)
}

var traceEnabled = false

// SetTraceEnabled toggles Tracef output. Off by default to keep production
// logs quiet during normal runs, matching the teacher's tracef/diagf/opsf
// tiering in internal/lidar/pipeline/tracking_pipeline.go.
func SetTraceEnabled(enabled bool) {
	traceEnabled = enabled
}

// Tracef logs per-sample detail: individual accel/GPS/gyro updates, frame
// hand-offs. Noisy by design — silenced unless SetTraceEnabled(true).
func Tracef(format string, v ...interface{}) {
	if !traceEnabled {
		return
	}
	Logf("[trace] "+format, v...)
}
