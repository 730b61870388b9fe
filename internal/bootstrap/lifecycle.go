package bootstrap

import (
	"context"
	"time"

	"github.com/kiiskristo/marketpulse-backend/internal/api"
	"github.com/kiiskristo/marketpulse-backend/internal/workers"
	"github.com/kiiskristo/marketpulse-backend/pkg/logger"
)

// Lifecycle manages graceful shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a lifecycle manager. timeout bounds the whole
// shutdown, open streams included.
func NewLifecycle(timeout time.Duration) *Lifecycle {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Lifecycle{shutdownTimeout: timeout}
}

// Shutdown stops components in order:
// 1. No new requests, open streams drain
// 2. Background workers stop
// 3. Infrastructure connections closed
// 4. Errors flushed and logs synced
func (l *Lifecycle) Shutdown(httpServer *api.Server, scheduler *workers.Scheduler, c *Container, log *logger.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer cancel()

	log.Info("[1/4] Stopping HTTP server...")
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
		}
	}

	log.Info("[2/4] Stopping background workers...")
	if scheduler != nil && scheduler.IsRunning() {
		if err := scheduler.Stop(); err != nil {
			log.Errorw("Workers shutdown failed", "error", err)
		}
	}

	log.Info("[3/4] Closing connections...")
	if c != nil {
		c.Close()
	}

	log.Info("[4/4] Flushing error tracker and logs...")
	if c != nil && c.ErrorTracker != nil {
		flushCtx, flushCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		if err := c.ErrorTracker.Flush(flushCtx); err != nil {
			log.Warnw("Failed to flush error tracker", "error", err)
		}
		flushCancel()
	}
	_ = logger.Sync()

	log.Info("Shutdown complete")
}
