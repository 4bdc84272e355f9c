package logging

import "log/slog"

// CoordinatorLogger adapts *slog.Logger to the keysAndValues-style Logger
// interface consumed by the coordinator and detector.
type CoordinatorLogger struct {
	logger *slog.Logger
}

// NewCoordinatorLogger creates a new CoordinatorLogger wrapping a slog.Logger.
func NewCoordinatorLogger(logger *slog.Logger) *CoordinatorLogger {
	return &CoordinatorLogger{logger: logger}
}

// Debug logs a debug message with optional key-value pairs.
func (l *CoordinatorLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

// Info logs an info message with optional key-value pairs.
func (l *CoordinatorLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info(msg, keysAndValues...)
}

// Warn logs a warning message with optional key-value pairs.
func (l *CoordinatorLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.Warn(msg, keysAndValues...)
}

// Error logs an error message with optional key-value pairs.
func (l *CoordinatorLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Error(msg, keysAndValues...)
}
