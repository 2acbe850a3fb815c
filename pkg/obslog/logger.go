// Package obslog provides structured logging for the verification engine,
// wrapping log/slog with fluent helpers for the fields rounds and
// verification primitives care about (round index, component, error).
package obslog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/certen/graphverify/pkg/verrs"
)

// Logger wraps slog.Logger with additional fluent helpers.
type Logger struct {
	*slog.Logger
	config *Config
}

// Config controls output format and destination.
type Config struct {
	Level     slog.Level
	Format    string // "json" or "text"
	Output    string // "stdout", "stderr", or file path
	AddSource bool
}

// DefaultConfig returns a text logger to stdout at info level.
func DefaultConfig() *Config {
	return &Config{Level: slog.LevelInfo, Format: "text", Output: "stdout"}
}

// Field is a single structured log field.
type Field struct {
	Key   string
	Value any
}

// NewLogger builds a Logger from the given config (nil uses DefaultConfig).
func NewLogger(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var output io.Writer
	switch cfg.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		output = file
	}

	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{Logger: slog.New(handler), config: cfg}, nil
}

func (l *Logger) with(fields ...Field) *Logger {
	if len(fields) == 0 {
		return l
	}
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return &Logger{Logger: l.Logger.With(args...), config: l.config}
}

// WithComponent tags subsequent log lines with the originating component.
func (l *Logger) WithComponent(component string) *Logger {
	return l.with(Field{"component", component})
}

// WithRound tags subsequent log lines with the current round index.
func (l *Logger) WithRound(round int) *Logger {
	return l.with(Field{"round", round})
}

// WithError attaches verification-error taxonomy fields when present.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	fields := []Field{{"error", err.Error()}}
	if ve, ok := verrs.As(err); ok {
		fields = append(fields, Field{"error_code", string(ve.Code)}, Field{"error_timestamp", ve.Timestamp})
		if ve.Details != "" {
			fields = append(fields, Field{"error_details", ve.Details})
		}
	}
	return l.with(fields...)
}

func (l *Logger) log(level slog.Level, msg string, fields ...Field) {
	if !l.Logger.Enabled(context.Background(), level) {
		return
	}
	attrs := make([]slog.Attr, len(fields))
	for i, f := range fields {
		attrs[i] = slog.Any(f.Key, f.Value)
	}
	if l.config.AddSource {
		_, file, line, ok := runtime.Caller(2)
		if ok {
			attrs = append(attrs, slog.Group("source", slog.String("file", file), slog.Int("line", line)))
		}
	}
	l.Logger.LogAttrs(context.Background(), level, msg, attrs...)
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(slog.LevelDebug, msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(slog.LevelInfo, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(slog.LevelWarn, msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(slog.LevelError, msg, fields...) }

// LogRoundOutcome logs the result of a round, at error level on failure.
func (l *Logger) LogRoundOutcome(round int, kind string, query bool, duration time.Duration, err error) {
	fields := []Field{
		{"round", round},
		{"update_type", kind},
		{"query_round", query},
		{"duration_ms", duration.Milliseconds()},
	}
	if err != nil {
		l.Error("round failed", append(fields, Field{"error", err.Error()})...)
		return
	}
	l.Info("round completed", fields...)
}

var global *Logger

// SetGlobal installs the process-wide default logger.
func SetGlobal(l *Logger) { global = l }

// Global returns the process-wide logger, lazily creating a default one.
func Global() *Logger {
	if global == nil {
		l, _ := NewLogger(DefaultConfig())
		global = l
	}
	return global
}

func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}
