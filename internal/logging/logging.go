// Package logging provides the leveled, structured logger used across the
// collector, plus helpers that derive loggers carrying structured fields:
// With for arbitrary key/value pairs and ForDevice for a run_id/host/attempt
// scoped logger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	level  atomic.Int32
	logger atomic.Pointer[slog.Logger]
)

func init() {
	level.Store(int32(slog.LevelInfo))
	logger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// Config controls the package-level logger.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text, json
	Output io.Writer
}

// Init reconfigures the package-level logger. Output defaults to stderr.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	lvl := parseLevel(cfg.Level)
	level.Store(int32(lvl))

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	logger.Store(slog.New(handler))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// L returns the current package-level logger.
func L() *slog.Logger {
	return logger.Load()
}

// With returns a derived logger carrying the given structured fields.
// Conventionally used as logging.With("host", device.Name, "job", jobID).
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// ForDevice returns a logger scoped to a single device task within a run.
func ForDevice(ctx context.Context, runID, host string, attempt int) *slog.Logger {
	l := L().With("run_id", runID, "host", host)
	if attempt > 0 {
		l = l.With("attempt", attempt)
	}
	return l
}
