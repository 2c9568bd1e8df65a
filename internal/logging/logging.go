// Package logging builds the slog loggers shared by every cwl2nf component.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options select the logger's level and handler.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text, json
	// Debug forces the debug level regardless of Level.
	Debug bool
}

// New creates the process logger from options, writing to stderr.
// stdout is reserved for pipeline and report output.
func New(o Options) *slog.Logger {
	return NewWithWriter(o, os.Stderr)
}

// NewWithWriter creates a logger from options writing to w.
func NewWithWriter(o Options, w io.Writer) *slog.Logger {
	level := ParseLevel(o.Level)
	if o.Debug {
		level = slog.LevelDebug
	}
	return NewLoggerWithWriter(level, o.Format, w)
}

// NewLogger creates a logger at level writing text or json to stderr.
func NewLogger(level slog.Level, format string) *slog.Logger {
	return NewLoggerWithWriter(level, format, os.Stderr)
}

// NewLoggerWithWriter creates a logger writing to the given writer.
// Unknown formats fall back to text.
func NewLoggerWithWriter(level slog.Level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
