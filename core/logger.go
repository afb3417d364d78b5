package core

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger interface for structured logging
// Implementations can provide custom logging behavior; the default is backed by zerolog.
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Warn logs a warning message with optional fields
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// DefaultLogger writes structured log lines through zerolog.
type DefaultLogger struct {
	zl zerolog.Logger
}

// NewDefaultLogger creates a DefaultLogger writing JSON lines to stderr.
func NewDefaultLogger() *DefaultLogger {
	return NewZerologLogger(zerolog.New(os.Stderr).With().Timestamp().Logger())
}

// NewZerologLogger wraps an existing zerolog.Logger.
func NewZerologLogger(zl zerolog.Logger) *DefaultLogger {
	return &DefaultLogger{zl: zl}
}

// NewLogger builds a DefaultLogger for the given level ("debug", "info", ...) and
// format ("json" or "console").
func NewLogger(w io.Writer, level, format string) (*DefaultLogger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		lvl = parsed
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return NewZerologLogger(zerolog.New(w).Level(lvl).With().Timestamp().Logger()), nil
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, fields ...Field) {
	l.log(l.zl.Debug(), msg, fields...)
}

// Info logs an info message
func (l *DefaultLogger) Info(msg string, fields ...Field) {
	l.log(l.zl.Info(), msg, fields...)
}

// Warn logs a warning message
func (l *DefaultLogger) Warn(msg string, fields ...Field) {
	l.log(l.zl.Warn(), msg, fields...)
}

// Error logs an error message
func (l *DefaultLogger) Error(msg string, fields ...Field) {
	l.log(l.zl.Error(), msg, fields...)
}

func (l *DefaultLogger) log(ev *zerolog.Event, msg string, fields ...Field) {
	// nil when the level is disabled
	if ev == nil {
		return
	}
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			ev = ev.AnErr(f.Key, err)
			continue
		}
		ev = ev.Interface(f.Key, f.Value)
	}
	ev.Msg(msg)
}

// NoOpLogger is a logger that discards all log messages
// Useful for tests or when logging is not desired
type NoOpLogger struct{}

// NewNoOpLogger creates a new NoOpLogger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, fields ...Field) {}
func (l *NoOpLogger) Info(msg string, fields ...Field)  {}
func (l *NoOpLogger) Warn(msg string, fields ...Field)  {}
func (l *NoOpLogger) Error(msg string, fields ...Field) {}
