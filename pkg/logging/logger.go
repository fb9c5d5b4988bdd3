package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Logger wraps slog.Logger with application-specific functionality
type Logger struct {
	*slog.Logger
}

// Options selects where log records go. Console receives human-readable,
// optionally colored lines; File receives JSON records.
type Options struct {
	Level   string
	Console io.Writer
	File    io.Writer
	Color   bool
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// New creates a new logger with the specified level
func New(level string) *Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(handler)

	return &Logger{Logger: logger}
}

// NewWithSinks creates a logger that writes every record to the console and,
// when configured, appends it to a JSON log file.
func NewWithSinks(opts Options) *Logger {
	level := ParseLevel(opts.Level)
	var handlers []slog.Handler
	if opts.Console != nil {
		handlers = append(handlers, newConsoleHandler(opts.Console, level, opts.Color))
	}
	if opts.File != nil {
		handlers = append(handlers, slog.NewJSONHandler(opts.File, &slog.HandlerOptions{Level: level}))
	}
	switch len(handlers) {
	case 0:
		return New(opts.Level)
	case 1:
		return &Logger{Logger: slog.New(handlers[0])}
	default:
		return &Logger{Logger: slog.New(slogmulti.Fanout(handlers...))}
	}
}

// With returns a child logger carrying args on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// NewWithHandler wraps an arbitrary handler, e.g. a capturing handler in tests.
func NewWithHandler(h slog.Handler) *Logger {
	if h == nil {
		return Default()
	}
	return &Logger{Logger: slog.New(h)}
}

// Default returns a logger with default settings
func Default() *Logger {
	return New("info")
}
