package framing

import "log/slog"

// Logger receives structured log records as a message plus key-value pairs.
// *slog.Logger satisfies it. Readers, writers and streams log at debug level
// only and still return every error to the caller; Conn and Server also log
// connection lifecycle events at info level.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// defaultLogger returns slog.Default().
func defaultLogger() Logger {
	return slog.Default()
}
