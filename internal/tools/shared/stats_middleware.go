package shared

import (
	"context"
	"time"

	"github.com/kiiskristo/marketpulse-backend/internal/metrics"
	"github.com/kiiskristo/marketpulse-backend/pkg/logger"
)

// StatsMiddleware records tool usage metrics and logs each call.
type StatsMiddleware struct {
	log *logger.Logger
}

// NewStatsMiddleware constructs a middleware logging to log.
func NewStatsMiddleware(log *logger.Logger) *StatsMiddleware {
	if log == nil {
		log = logger.Get()
	}
	return &StatsMiddleware{log: log}
}

// Record reports one finished tool call.
func (m *StatsMiddleware) Record(ctx context.Context, name string, duration time.Duration, outputBytes int, err error) {
	metrics.RecordToolExecution(name, duration, err)

	log := m.log.With("tool", name, "duration_ms", duration.Milliseconds())
	if meta, ok := MetadataFromContext(ctx); ok {
		log = log.With(meta.logFields()...)
	}
	if err != nil {
		log.Warnw("Tool call failed", "error", err)
	} else {
		log.Debugw("Tool call finished", "output_bytes", outputBytes)
	}
}

// wrapWithStats adds stats tracking around a tool function
func wrapWithStats[A any](m *StatsMiddleware, name string, fn ToolFunc[A]) ToolFunc[A] {
	return func(ctx context.Context, args A) (string, error) {
		start := time.Now()
		out, err := fn(ctx, args)
		m.Record(ctx, name, time.Since(start), len(out), err)
		return out, err
	}
}
