package ai

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

// RateLimiter defines the interface for rate limiting AI provider requests.
type RateLimiter interface {
	// Wait blocks until request can proceed or context is cancelled.
	Wait(ctx context.Context) error

	// Allow checks if request can proceed without blocking.
	Allow() bool

	// Limit returns current rate limit (requests per minute).
	Limit() float64
}

// TokenBucketLimiter is an in-process limiter for single-instance deployments.
type TokenBucketLimiter struct {
	limiter  *rate.Limiter
	provider ProviderName
}

// NewTokenBucketLimiter creates a new token bucket rate limiter.
// reqPerMinute: maximum requests per minute
// burst: maximum burst size, defaults to 10% of the rate
func NewTokenBucketLimiter(provider ProviderName, reqPerMinute float64, burst int) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		limiter:  rate.NewLimiter(rate.Limit(reqPerMinute/60.0), defaultBurst(reqPerMinute, burst)),
		provider: provider,
	}
}

func defaultBurst(reqPerMinute float64, burst int) int {
	if burst > 0 {
		return burst
	}
	burst = int(reqPerMinute / 10)
	if burst < 1 {
		burst = 1
	}
	return burst
}

// Wait blocks until a token is available or context is cancelled.
func (l *TokenBucketLimiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &RateLimitError{
			Provider: l.provider,
			Limit:    l.Limit(),
			Err:      errors.Wrap(err, "rate limiter wait cancelled"),
		}
	}
	return nil
}

// Allow checks if a request can proceed and consumes a token if available.
func (l *TokenBucketLimiter) Allow() bool {
	return l.limiter.Allow()
}

// Limit returns the current rate limit in requests per minute.
func (l *TokenBucketLimiter) Limit() float64 {
	return float64(l.limiter.Limit()) * 60.0
}

// NoOpLimiter is a rate limiter that never blocks (for testing or disabled rate limiting).
type NoOpLimiter struct{}

// NewNoOpLimiter creates a no-op rate limiter.
func NewNoOpLimiter() *NoOpLimiter {
	return &NoOpLimiter{}
}

// Wait always returns immediately without error.
func (l *NoOpLimiter) Wait(ctx context.Context) error {
	return nil
}

// Allow always returns true.
func (l *NoOpLimiter) Allow() bool {
	return true
}

// Limit returns -1 to indicate unlimited.
func (l *NoOpLimiter) Limit() float64 {
	return -1
}

// RateLimitConfig contains rate limit configuration for a provider.
type RateLimitConfig struct {
	ReqPerMinute float64
	Burst        int
}

// Enabled reports whether the limit restricts anything.
func (c RateLimitConfig) Enabled() bool {
	return c.ReqPerMinute > 0
}

// NewRateLimiter picks the limiter matching the deployment: none when the
// limit is disabled, Redis-backed when a client is given (shared by every
// replica), in-process otherwise.
func NewRateLimiter(provider ProviderName, cfg RateLimitConfig, client *redis.Client) RateLimiter {
	switch {
	case !cfg.Enabled():
		return NewNoOpLimiter()
	case client != nil:
		return NewRedisRateLimiter(client, provider, cfg.ReqPerMinute, cfg.Burst)
	default:
		return NewTokenBucketLimiter(provider, cfg.ReqPerMinute, cfg.Burst)
	}
}

// RateLimitError wraps rate limit related errors with provider context.
type RateLimitError struct {
	Provider ProviderName
	Limit    float64
	Err      error
}

// Error implements error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit error for provider %s (limit: %.0f req/min): %v", e.Provider, e.Limit, e.Err)
}

// Unwrap returns the underlying error.
func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// Is reports RateLimitError as errors.ErrRateLimitExceeded.
func (e *RateLimitError) Is(target error) bool {
	return target == errors.ErrRateLimitExceeded
}
