package workers

import (
	"context"
	"time"

	"github.com/kiiskristo/marketpulse-backend/pkg/logger"
)

// Pruner removes cache entries older than a maximum age.
type Pruner interface {
	Prune(ctx context.Context, maxAge time.Duration) (int, error)
}

// CachePruner keeps the file cache from growing without bound.
type CachePruner struct {
	*BaseWorker
	store  Pruner
	maxAge time.Duration
}

// NewCachePruner creates a worker pruning store every interval.
func NewCachePruner(store Pruner, interval, maxAge time.Duration, log *logger.Logger) *CachePruner {
	return &CachePruner{
		BaseWorker: NewBaseWorker("cache_pruner", interval, store != nil && interval > 0, log),
		store:      store,
		maxAge:     maxAge,
	}
}

// Run implements Worker.
func (w *CachePruner) Run(ctx context.Context) error {
	start := time.Now()
	removed, err := w.store.Prune(ctx, w.maxAge)
	if err != nil {
		w.RecordError(err, time.Since(start))
		return err
	}
	w.RecordRun(time.Since(start))

	if removed > 0 {
		w.Log().Infow("Pruned cache entries", "removed", removed, "max_age", w.maxAge.String())
	}
	return nil
}
