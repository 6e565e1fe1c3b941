// Package obslog builds the process-wide structured logger.
package obslog

import (
	"context"
	"log/slog"
	"os"

	"github.com/muesli/termenv"
)

type correlationKey struct{}

// WithCorrelationID attaches a correlation id to ctx for log enrichment.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID extracts a correlation id previously attached to ctx.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}

// New builds the process-wide logger: JSON in production, a human-readable
// text handler when level is debug and stdout is a terminal.
func New(level string) *slog.Logger {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if lvl == slog.LevelDebug && termenv.ColorProfile() != termenv.Ascii {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithContext returns a logger enriched with the correlation id from ctx, if any.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := CorrelationID(ctx); id != "" {
		return logger.With("correlation_id", id)
	}
	return logger
}
