package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiiskristo/marketpulse-backend/internal/adapters/config"
	"github.com/kiiskristo/marketpulse-backend/internal/testsupport"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

func TestNewClient_NotConfigured(t *testing.T) {
	_, err := NewClient(context.Background(), config.RedisConfig{})
	assert.ErrorIs(t, err, errors.ErrNotConfigured)
}

func TestClient_BytesAndCounters(t *testing.T) {
	client := Wrap(testsupport.NewRedisClient(t, testsupport.RedisConfigFromEnv(t)))
	ctx := context.Background()

	_, err := client.GetBytes(ctx, "missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	require.NoError(t, client.SetBytes(ctx, "k", []byte("v"), time.Minute))
	got, err := client.GetBytes(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	n, err := client.IncrementWithExpiry(ctx, "counter", time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = client.IncrementWithExpiry(ctx, "counter", time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	ttl, err := client.Client().TTL(ctx, "counter").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, client.Delete(ctx, "k"))
	require.NoError(t, client.Health(ctx))
}
