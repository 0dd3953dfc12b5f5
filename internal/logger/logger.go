// Package logger provides leveled logging with support for debug, info, warn, and error levels.
// It wraps log/slog so that every message is emitted as a structured record, either as
// JSON (the default) or as logfmt-style text, while keeping printf-style call sites.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level represents a logging level
type Level int

const (
	// DebugLevel logs are typically voluminous, and are usually disabled in production.
	DebugLevel Level = iota
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel logs are more important than Info, but don't need individual human review.
	WarnLevel
	// ErrorLevel logs are high-priority. If a calculation is running smoothly, it shouldn't generate any error-level logs.
	ErrorLevel
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a level name to a Level. Unknown names map to InfoLevel.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger provides leveled logging with persistent attributes
type Logger struct {
	slog *slog.Logger
}

var (
	// Global logger instance; nil until Init is called
	defaultLogger *Logger
)

// Init initializes the default logger with the specified level and format, writing to stderr
func Init(level string, format string) {
	InitWithWriter(os.Stderr, level, format)
}

// InitWithWriter initializes the default logger with an explicit destination
func InitWithWriter(w io.Writer, level string, format string) {
	defaultLogger = New(w, level, format)
}

// New creates a standalone Logger. Format "text" selects the text handler, anything else JSON.
func New(w io.Writer, level string, format string) *Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level).slogLevel()}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return &Logger{slog: slog.New(handler)}
}

// Default returns the global logger. Before Init it is nil, and a nil Logger discards everything.
func Default() *Logger {
	return defaultLogger
}

// With returns a child of the default logger carrying the given key/value attributes
func With(args ...any) *Logger {
	return Default().With(args...)
}

// With returns a child logger carrying the given key/value attributes.
// Calling With on a nil Logger yields a nil Logger, which discards everything.
func (l *Logger) With(args ...any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{slog: l.slog.With(args...)}
}

func (l *Logger) log(level Level, format string, args ...any) {
	if l == nil {
		return
	}
	ctx := context.Background()
	if !l.slog.Enabled(ctx, level.slogLevel()) {
		return
	}
	l.slog.Log(ctx, level.slogLevel(), fmt.Sprintf(format, args...))
}

// Debug logs a message at DebugLevel
func (l *Logger) Debug(format string, args ...any) { l.log(DebugLevel, format, args...) }

// Info logs a message at InfoLevel
func (l *Logger) Info(format string, args ...any) { l.log(InfoLevel, format, args...) }

// Warn logs a message at WarnLevel
func (l *Logger) Warn(format string, args ...any) { l.log(WarnLevel, format, args...) }

// Error logs a message at ErrorLevel
func (l *Logger) Error(format string, args ...any) { l.log(ErrorLevel, format, args...) }

// Debug logs a message at DebugLevel
func Debug(format string, args ...any) {
	defaultLogger.log(DebugLevel, format, args...)
}

// Info logs a message at InfoLevel
func Info(format string, args ...any) {
	defaultLogger.log(InfoLevel, format, args...)
}

// Warn logs a message at WarnLevel
func Warn(format string, args ...any) {
	defaultLogger.log(WarnLevel, format, args...)
}

// Error logs a message at ErrorLevel
func Error(format string, args ...any) {
	defaultLogger.log(ErrorLevel, format, args...)
}

// Fatal logs a message at ErrorLevel and exits
func Fatal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if defaultLogger != nil {
		defaultLogger.slog.Error(msg, "fatal", true)
	} else {
		fmt.Fprintln(os.Stderr, "[FATAL] "+msg)
	}
	os.Exit(1)
}
