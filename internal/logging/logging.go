// Package logging builds the slog loggers used across the runtime.
//
// Console output goes through tint; "json" format uses the standard JSON
// handler so logs can be shipped. WithClock stamps each record with the
// platform time, which on a discrete-event platform differs from the wall
// clock.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// ClockKey is the attribute key carrying the platform time in milliseconds
const ClockKey = "t_ms"

// Config controls logger construction
type Config struct {
	// Level is one of debug, info, warn, error (default info)
	Level string

	// Format is "text" (colored console) or "json" (default text)
	Format string

	// NoColor disables ANSI colors in text output
	NoColor bool

	// Output defaults to os.Stderr
	Output io.Writer
}

// ParseLevel converts a level name to a slog.Level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New creates a logger from cfg
func New(cfg Config) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		h = tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
			NoColor:    cfg.NoColor,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Value.Kind() == slog.KindAny {
					if _, ok := a.Value.Any().(error); ok {
						return tint.Attr(9, a)
					}
				}
				return a
			},
		})
	case "json":
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(h), nil
}

// WithClock returns a logger that adds the current value of clock to every
// record under ClockKey
func WithClock(l *slog.Logger, clock func() int64) *slog.Logger {
	return slog.New(&clockHandler{next: l.Handler(), clock: clock})
}

type clockHandler struct {
	next  slog.Handler
	clock func() int64
}

func (h *clockHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *clockHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(slog.Int64(ClockKey, h.clock()))
	return h.next.Handle(ctx, r)
}

func (h *clockHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &clockHandler{next: h.next.WithAttrs(attrs), clock: h.clock}
}

func (h *clockHandler) WithGroup(name string) slog.Handler {
	return &clockHandler{next: h.next.WithGroup(name), clock: h.clock}
}
