package testsupport

import (
	"os"
	"strconv"
	"testing"

	"github.com/kiiskristo/marketpulse-backend/internal/adapters/config"
)

// RedisConfigFromEnv reads the Redis settings for integration tests.
// Tests are skipped unless TEST_REDIS_HOST is set, so a developer's
// REDIS_HOST is never flushed by accident.
func RedisConfigFromEnv(t *testing.T) config.RedisConfig {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	host := os.Getenv("TEST_REDIS_HOST")
	if host == "" {
		t.Skip("integration environment missing, set TEST_REDIS_HOST to run")
	}

	return config.RedisConfig{
		Host:     host,
		Port:     intValue("TEST_REDIS_PORT", 6379),
		Password: os.Getenv("TEST_REDIS_PASSWORD"),
		DB:       intValue("TEST_REDIS_DB", 15),
	}
}

func intValue(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}

	return fallback
}
