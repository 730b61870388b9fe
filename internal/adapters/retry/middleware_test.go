package retry

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

func fastConfig() Config {
	return Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDo_RetriesTransientFailures(t *testing.T) {
	m := New(fastConfig())
	calls := 0

	err := m.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &HTTPError{API: "serper", Status: http.StatusServiceUnavailable}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentFailure(t *testing.T) {
	m := New(fastConfig())
	calls := 0

	err := m.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &HTTPError{API: "bing", Status: http.StatusUnauthorized}
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, errors.ErrExternal)
}

func TestDoWithResult_GivesUpAfterMaxRetries(t *testing.T) {
	m := New(fastConfig())
	calls := 0

	_, err := DoWithResult(context.Background(), m, func(ctx context.Context) (string, error) {
		calls++
		return "", &HTTPError{API: "alphavantage", Status: http.StatusTooManyRequests}
	})

	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, errors.ErrRateLimitExceeded)
	assert.Contains(t, err.Error(), "max retries (3) exceeded")
}

func TestDoWithResult_ReturnsValue(t *testing.T) {
	got, err := DoWithResult(context.Background(), New(fastConfig()), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestDo_RespectsCancellation(t *testing.T) {
	m := New(Config{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := m.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return &HTTPError{Status: http.StatusBadGateway}
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_NegativeRetriesDisables(t *testing.T) {
	m := New(Config{MaxRetries: -1})
	calls := 0
	err := m.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &HTTPError{Status: http.StatusInternalServerError}
	})
	assert.Equal(t, 1, calls)
	assert.Error(t, err)
	assert.NotContains(t, err.Error(), "max retries")
}

func TestCalculateDelay(t *testing.T) {
	tests := []struct {
		strategy Strategy
		attempt  int
		want     time.Duration
	}{
		{StrategyExponential, 0, 100 * time.Millisecond},
		{StrategyExponential, 2, 400 * time.Millisecond},
		{StrategyExponential, 10, time.Second},
		{StrategyLinear, 2, 300 * time.Millisecond},
		{StrategyFixed, 5, 100 * time.Millisecond},
	}

	for _, tt := range tests {
		m := New(Config{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Strategy: tt.strategy})
		assert.Equal(t, tt.want, m.calculateDelay(tt.attempt), "%s attempt %d", tt.strategy, tt.attempt)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(errors.Wrap(context.DeadlineExceeded, "call")))
	assert.True(t, IsRetryable(&HTTPError{Status: 502}))
	assert.True(t, IsRetryable(&HTTPError{Status: 408}))
	assert.False(t, IsRetryable(&HTTPError{Status: 404}))
	assert.True(t, IsRetryable(errors.New("dial tcp: connection refused")))
	assert.False(t, IsRetryable(errors.New("invalid api key")))
}
