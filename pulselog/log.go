// Package pulselog is the thin structured-logging facade used by conn,
// server, and socket. The core protocol packages (parser, outqueue,
// writer, router) stay logging-free so they remain usable as a pure
// library without forcing this dependency on an embedder that doesn't
// want it.
package pulselog

import "go.uber.org/zap"

var global = mustBuild()

func mustBuild() *zap.SugaredLogger {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	return l.Sugar()
}

// Set replaces the package-level logger, letting an embedder route
// pulsehttp's log lines into its own zap.Logger instead of the default
// production config.
func Set(l *zap.Logger) {
	global = l.Sugar()
}

// Get returns the current logger.
func Get() *zap.SugaredLogger {
	return global
}

// Debugf logs a connection-level debug line (request/response summaries,
// state transitions). Cheap to call even when disabled: zap defers
// formatting until a core actually writes the entry.
func Debugf(template string, args ...any) {
	global.Debugf(template, args...)
}

// Infof logs a notable but non-error event, e.g. a listener starting.
func Infof(template string, args ...any) {
	global.Infof(template, args...)
}

// Warnf logs a recoverable problem: a malformed request, a slow handler.
func Warnf(template string, args ...any) {
	global.Warnf(template, args...)
}

// Errorf logs a failure: accept() error, handler panic, write failure.
func Errorf(template string, args ...any) {
	global.Errorf(template, args...)
}
