package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	return uuid.NewString()
}

// WithTraceContext attaches a child logger carrying a fresh trace ID to ctx.
// One decision cycle (candle close or price tick) gets one trace ID.
func WithTraceContext(ctx context.Context, logger zerolog.Logger) (context.Context, zerolog.Logger) {
	l := logger.With().Str("trace_id", GenerateTraceID()).Logger()
	return l.WithContext(ctx), l
}

// FromContext retrieves the logger stored in ctx, or fallback when none is set
func FromContext(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return fallback
}

// PositionContext returns a logger scoped to one position
func PositionContext(logger zerolog.Logger, id int64, symbol string) zerolog.Logger {
	return logger.With().Int64("position_id", id).Str("symbol", symbol).Logger()
}
