package shared

import (
	"net/http"
	"time"

	"github.com/kiiskristo/marketpulse-backend/internal/adapters/retry"
	"github.com/kiiskristo/marketpulse-backend/internal/cache"
	"github.com/kiiskristo/marketpulse-backend/pkg/logger"
)

// Deps bundles dependencies required by concrete tool implementations.
type Deps struct {
	Cache cache.Store
	HTTP  *http.Client
	Retry *retry.Middleware
	Usage *UsageLog
	Log   *logger.Logger

	// Now defaults to time.Now. Tests pin it.
	Now func() time.Time
}

// WithDefaults fills every unset dependency with a working default.
// A nil Cache stays nil and disables caching.
func (d Deps) WithDefaults() Deps {
	if d.HTTP == nil {
		d.HTTP = &http.Client{Timeout: 30 * time.Second}
	}
	if d.Retry == nil {
		d.Retry = retry.New(retry.DefaultConfig())
	}
	if d.Log == nil {
		d.Log = logger.Get()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// HasCache reports whether tool results are cached
func (d Deps) HasCache() bool {
	return d.Cache != nil
}
