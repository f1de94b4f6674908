package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the interface for structured logging used throughout the service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// Level represents the minimum log level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// toSlogLevel converts our Level to slog.Level.
func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a level name such as "debug" or "WARN" to a Level.
// Unknown names fall back to Info.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// New creates a new logger using the provided slog handler.
func New(handler slog.Handler) Logger {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &slogLogger{logger: slog.New(handler)}
}

// NewWithLevel creates a JSON logger writing to stderr at the given level.
func NewWithLevel(level Level) Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level.toSlogLevel()})
	return &slogLogger{logger: slog.New(handler)}
}

// NewText creates a logger with human-readable text output.
func NewText(writer io.Writer, level Level) Logger {
	if writer == nil {
		writer = os.Stderr
	}
	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level.toSlogLevel()})
	return &slogLogger{logger: slog.New(handler)}
}

// Default returns a JSON logger at Info level.
func Default() Logger {
	return NewWithLevel(LevelInfo)
}

// Noop returns a logger that discards all messages.
func Noop() Logger {
	return &noopLogger{}
}

// slogLogger adapts slog.Logger to the Logger interface.
type slogLogger struct {
	logger *slog.Logger
}

// Debug logs a debug message with optional key-value pairs.
func (l *slogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// Info logs an informational message with optional key-value pairs.
func (l *slogLogger) Info(msg string, args ...any) { l.logger.Info(msg, args...) }

// Warn logs a warning message with optional key-value pairs.
func (l *slogLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// Error logs an error message with optional key-value pairs.
func (l *slogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// With returns a logger with the given key-value pairs added to all messages.
func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{logger: l.logger.With(args...)}
}

// Slog exposes the underlying slog.Logger for middleware that requires one.
func (l *slogLogger) Slog() *slog.Logger { return l.logger }

// noopLogger discards all log messages.
type noopLogger struct{}

func (n *noopLogger) Debug(msg string, args ...any) {}
func (n *noopLogger) Info(msg string, args ...any)  {}
func (n *noopLogger) Warn(msg string, args ...any)  {}
func (n *noopLogger) Error(msg string, args ...any) {}

// With returns the same noop logger.
func (n *noopLogger) With(args ...any) Logger { return n }
