package log

import (
	"context"
	"log/slog"
)

// Slogger adapts a *slog.Logger to the T interface, adding the Trace
// level below slog's built-in Debug.
type Slogger struct {
	logger *slog.Logger
}

var _ T = Slogger{}

// NewSlogger wraps the given slog.Logger.
func NewSlogger(logger *slog.Logger) Slogger {
	return Slogger{logger: logger}
}

// With returns a Slogger whose messages all carry the given key-value pairs.
func (s Slogger) With(args ...any) T {
	return Slogger{logger: s.logger.With(args...)}
}

// Trace logs at LevelTrace.
func (s Slogger) Trace(msg string, args ...any) {
	s.logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Debug logs at Debug level.
func (s Slogger) Debug(msg string, args ...any) {
	s.logger.Debug(msg, args...)
}

// Info logs at Info level.
func (s Slogger) Info(msg string, args ...any) {
	s.logger.Info(msg, args...)
}

// Warn logs at Warn level.
func (s Slogger) Warn(msg string, args ...any) {
	s.logger.Warn(msg, args...)
}

// Error logs at Error level.
func (s Slogger) Error(msg string, args ...any) {
	s.logger.Error(msg, args...)
}
