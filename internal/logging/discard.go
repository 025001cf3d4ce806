package logging

// DiscardLogger is a no-op logger that discards all log messages.
// Use this for benchmarks or when logging is not desired.
type DiscardLogger struct{}

// Discard is the singleton discard logger.
var Discard Logger = DiscardLogger{}

// Errorf implements Logger.
func (DiscardLogger) Errorf(string, ...any) {}

// Warnf implements Logger.
func (DiscardLogger) Warnf(string, ...any) {}

// Infof implements Logger.
func (DiscardLogger) Infof(string, ...any) {}

// Debugf implements Logger.
func (DiscardLogger) Debugf(string, ...any) {}
