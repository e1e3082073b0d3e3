// Package observe builds the process logger and metrics.
//
// The logger is a log/slog handler chain: a console handler (text on a
// terminal, JSON otherwise), an optional rotating JSON file, and an
// AlertHandler on top that turns warnings and worse into alert pages.
package observe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelFatal marks failures that end a pass or the process.
const LevelFatal = slog.Level(12)

// LogConfig controls logger construction.
type LogConfig struct {
	// Level is debug, info, warn, error or fatal.
	Level string `mapstructure:"level"`

	// Format is auto, text or json. Auto picks text on a terminal.
	Format string `mapstructure:"format"`

	// File, when set, receives JSON logs with size-based rotation.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DefaultLogConfig returns sensible defaults.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		Format:     "auto",
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 28,
	}
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "fatal":
		return LevelFatal, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// LevelName is the display name of a level, with FATAL for LevelFatal.
func LevelName(l slog.Level) string {
	if l >= LevelFatal {
		return "FATAL"
	}
	return l.String()
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if l, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(LevelName(l))
		}
	}
	return a
}

// NewHandler builds the console and file handlers described by cfg. The
// returned closer flushes and closes the log file; it is never nil.
func NewHandler(cfg LogConfig, console io.Writer, verbose bool) (slog.Handler, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if verbose && level > slog.LevelDebug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceLevel}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "auto":
		if isTerminal(console) {
			h = slog.NewTextHandler(console, opts)
		} else {
			h = slog.NewJSONHandler(console, opts)
		}
	case "text":
		h = slog.NewTextHandler(console, opts)
	case "json":
		h = slog.NewJSONHandler(console, opts)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.File == "" {
		return h, nopCloser{}, nil
	}
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	return Tee(h, slog.NewJSONHandler(file, opts)), file, nil
}

// NewLogger assembles the full chain: console and file handlers from
// logCfg, wrapped in an AlertHandler when alerts are enabled and sink is
// not nil.
func NewLogger(logCfg LogConfig, alertCfg AlertConfig, console io.Writer, verbose bool, sink AlertSink) (*slog.Logger, io.Closer, error) {
	h, closer, err := NewHandler(logCfg, console, verbose)
	if err != nil {
		return nil, nil, err
	}
	if alertCfg.Enabled && sink != nil {
		ah, err := NewAlertHandler(h, sink, alertCfg)
		if err != nil {
			_ = closer.Close()
			return nil, nil, err
		}
		h = ah
	}
	return slog.New(h), closer, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Tee returns a handler that sends every record to all of hs.
func Tee(hs ...slog.Handler) slog.Handler {
	return teeHandler(hs)
}

type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
