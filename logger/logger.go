// Package logger defines the structured logging surface used by the decision
// engine. Implementations must be safe for concurrent use.
package logger

// Logger accepts alternating key/value pairs after the message.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}
