package ai

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

// RedisRateLimiter implements distributed token bucket rate limiting via Redis.
// Every server replica sharing the Redis instance draws from one bucket.
type RedisRateLimiter struct {
	client      *redis.Client
	provider    ProviderName
	rate        float64 // Requests per second
	burst       int     // Maximum burst size
	keyPrefix   string  // Redis key prefix
	tokenScript *redis.Script
}

// Lua script for token bucket algorithm (atomic operation)
// KEYS[1] = token bucket key
// ARGV[1] = rate (tokens per second)
// ARGV[2] = burst (max tokens)
// ARGV[3] = current timestamp
// Returns: 1 if allowed, 0 if denied
const luaTokenBucketScript = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

-- Get current token count and last update time
local data = redis.call('HMGET', key, 'tokens', 'last_update')
local tokens = tonumber(data[1])
local last_update = tonumber(data[2])

-- Initialize if not exists
if not tokens then
    tokens = burst
    last_update = now
end

-- Refill tokens based on elapsed time
local elapsed = now - last_update
tokens = math.min(burst, tokens + elapsed * rate)

-- Check if we can consume a token
if tokens >= 1.0 then
    tokens = tokens - 1.0

    -- Save updated state
    redis.call('HMSET', key, 'tokens', tokens, 'last_update', now)
    redis.call('EXPIRE', key, 3600) -- Expire after 1 hour of inactivity

    return 1
else
    -- Save state without consuming
    redis.call('HMSET', key, 'tokens', tokens, 'last_update', now)
    redis.call('EXPIRE', key, 3600)

    return 0
end
`

// NewRedisRateLimiter creates a new Redis-based rate limiter.
func NewRedisRateLimiter(
	client *redis.Client,
	provider ProviderName,
	reqPerMinute float64,
	burst int,
) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:      client,
		provider:    provider,
		rate:        reqPerMinute / 60.0,
		burst:       defaultBurst(reqPerMinute, burst),
		keyPrefix:   fmt.Sprintf("marketpulse:rate_limit:llm:%s", provider),
		tokenScript: redis.NewScript(luaTokenBucketScript),
	}
}

// Wait blocks until a token is available or context is cancelled.
func (l *RedisRateLimiter) Wait(ctx context.Context) error {
	for {
		// Try to get token
		allowed, err := l.tryAcquire(ctx)
		if err != nil {
			return errors.Wrapf(err, "redis rate limiter error for provider %s", l.provider)
		}

		if allowed {
			return nil
		}

		// Calculate wait time based on rate
		waitTime := time.Duration(float64(time.Second) / l.rate)

		// Wait with context cancellation support
		select {
		case <-ctx.Done():
			return &RateLimitError{
				Provider: l.provider,
				Limit:    l.Limit(),
				Err:      errors.Wrap(ctx.Err(), "rate limiter wait cancelled"),
			}
		case <-time.After(waitTime):
			// Continue loop to try again
		}
	}
}

// Allow checks if a request can proceed without blocking.
func (l *RedisRateLimiter) Allow() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	allowed, err := l.tryAcquire(ctx)
	if err != nil {
		// On error, be conservative and deny
		return false
	}

	return allowed
}

// Limit returns the current rate limit in requests per minute.
func (l *RedisRateLimiter) Limit() float64 {
	return l.rate * 60.0 // Convert back to requests per minute
}

// tryAcquire attempts to acquire a token using Redis Lua script.
func (l *RedisRateLimiter) tryAcquire(ctx context.Context) (bool, error) {
	now := float64(time.Now().UnixNano()) / float64(time.Second)

	result, err := l.tokenScript.Run(
		ctx,
		l.client,
		[]string{l.keyPrefix},
		l.rate,
		l.burst,
		now,
	).Int()

	if err != nil {
		return false, errors.Wrap(err, "failed to execute token bucket script")
	}

	return result == 1, nil
}

// Reset clears the rate limiter state (useful for testing).
func (l *RedisRateLimiter) Reset(ctx context.Context) error {
	return l.client.Del(ctx, l.keyPrefix).Err()
}

// GetStats returns current rate limiter stats (for monitoring).
func (l *RedisRateLimiter) GetStats(ctx context.Context) (tokens float64, lastUpdate time.Time, err error) {
	data, err := l.client.HMGet(ctx, l.keyPrefix, "tokens", "last_update").Result()
	if err != nil {
		return 0, time.Time{}, errors.Wrap(err, "failed to get rate limiter stats")
	}

	tokens = float64(l.burst) // Not initialized yet
	if s, ok := data[0].(string); ok {
		if tokens, err = strconv.ParseFloat(s, 64); err != nil {
			return 0, time.Time{}, errors.Wrap(err, "parse tokens")
		}
	}

	lastUpdate = time.Now()
	if s, ok := data[1].(string); ok {
		ts, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, time.Time{}, errors.Wrap(err, "parse last update")
		}
		lastUpdate = time.Unix(0, int64(ts*float64(time.Second)))
	}

	return tokens, lastUpdate, nil
}
