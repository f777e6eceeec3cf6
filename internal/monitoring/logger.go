// Package monitoring holds the diagnostic logger shared by every package and
// the grid plan diagnostic plot.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}

// Logger logs through Logf with a fixed component prefix.
type Logger struct {
	prefix string
}

// For returns a logger that prefixes each line with "component: ". The
// current Logf is looked up on every call, so SetLogger applies to loggers
// created earlier.
func For(component string) Logger {
	return Logger{prefix: component + ": "}
}

// Printf logs one line.
func (l Logger) Printf(format string, v ...any) {
	Logf(l.prefix+format, v...)
}
