// Package logging provides structured logging for livestream-viewer.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures a logger.
type Options struct {
	// Format is "json" or "text". Unknown values fall back to JSON.
	Format string

	// Level is "debug", "info", "warn" or "error".
	Level string

	// Verbose forces debug level and adds source locations.
	Verbose bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// New creates a structured logger from opts.
func New(opts Options) *slog.Logger {
	level := parseLevel(opts.Level)
	if opts.Verbose {
		level = slog.LevelDebug
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: opts.Verbose,
	}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "text":
		handler = slog.NewTextHandler(out, handlerOpts)
	default:
		handler = slog.NewJSONHandler(out, handlerOpts)
	}

	return slog.New(handler)
}

// Discard returns a logger that drops everything.
// Used while the terminal dashboard owns the screen.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ForComponent tags every entry from logger with the component name.
func ForComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", component)
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetDefault sets the default logger for the slog package.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
