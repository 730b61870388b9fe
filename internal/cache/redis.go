package cache

import (
	"context"
	"time"

	redisadapter "github.com/kiiskristo/marketpulse-backend/internal/adapters/redis"
	"github.com/kiiskristo/marketpulse-backend/internal/metrics"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

const redisPrefix = "marketpulse:cache:"

// RedisStore keeps entries in Redis with a server-side TTL, so a cache is
// shared by every replica.
type RedisStore struct {
	client *redisadapter.Client
	now    func() time.Time
}

// NewRedisStore creates a store on client.
func NewRedisStore(client *redisadapter.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func redisKey(namespace, key string) string {
	return redisPrefix + SanitizeKey(namespace) + ":" + key
}

// Get implements Store. Expiry is enforced by Redis.
func (s *RedisStore) Get(ctx context.Context, namespace, key string, _ Expiry) ([]byte, bool, error) {
	data, err := s.client.GetBytes(ctx, redisKey(namespace, key))
	switch {
	case errors.Is(err, errors.ErrNotFound):
		metrics.RecordCacheLookup(namespace, false, nil)
		return nil, false, nil
	case err != nil:
		metrics.RecordCacheLookup(namespace, false, err)
		return nil, false, errors.Wrap(err, "redis cache get")
	}
	metrics.RecordCacheLookup(namespace, true, nil)
	return data, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, namespace, key string, value []byte, expiry Expiry) error {
	ttl := expiry.Remaining(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.SetBytes(ctx, redisKey(namespace, key), value, ttl); err != nil {
		return errors.Wrap(err, "redis cache set")
	}
	return nil
}
