package logger

import (
	"context"
	"fmt"
	"log/slog"
)

// SlogLogger adapts a stdlib slog.Logger for callers already standardized on slog.
type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Debug(msg string, keyvals ...any) { s.log(slog.LevelDebug, msg, keyvals) }
func (s *SlogLogger) Info(msg string, keyvals ...any)  { s.log(slog.LevelInfo, msg, keyvals) }
func (s *SlogLogger) Warn(msg string, keyvals ...any)  { s.log(slog.LevelWarn, msg, keyvals) }
func (s *SlogLogger) Error(msg string, keyvals ...any) { s.log(slog.LevelError, msg, keyvals) }

func (s *SlogLogger) log(level slog.Level, msg string, keyvals []any) {
	attrs := make([]slog.Attr, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		attrs = append(attrs, slog.Any(fmt.Sprint(keyvals[i]), keyvals[i+1]))
	}
	s.l.LogAttrs(context.Background(), level, msg, attrs...)
}
