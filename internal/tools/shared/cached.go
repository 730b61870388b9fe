package shared

import (
	"context"

	"github.com/dustin/go-humanize"

	"github.com/kiiskristo/marketpulse-backend/internal/cache"
)

// Cached returns the fresh cached value of namespace/key or calls fetch and
// stores its result. Failures are never stored. Cache errors only cost a
// refetch.
func Cached(ctx context.Context, deps Deps, namespace, key string, expiry cache.Expiry, fetch func(ctx context.Context) (string, error)) (string, error) {
	log := deps.Log.With("namespace", namespace, "key", key)

	if deps.HasCache() {
		value, ok, err := deps.Cache.Get(ctx, namespace, key, expiry)
		switch {
		case err != nil:
			log.Warnw("Cache read failed", "error", err)
		case ok:
			log.Debugw("Cache hit", "size", humanize.Bytes(uint64(len(value))))
			return string(value), nil
		}
	}

	out, err := fetch(ctx)
	if err != nil {
		return "", err
	}

	if deps.HasCache() {
		if err := deps.Cache.Set(ctx, namespace, key, []byte(out), expiry); err != nil {
			log.Warnw("Cache write failed", "error", err)
		}
	}
	return out, nil
}
