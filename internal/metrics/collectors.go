package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// RedisPoolCollector exports connection pool statistics of the Redis
// client shared by the tool cache and the distributed rate limiter.
type RedisPoolCollector struct {
	client *redis.Client

	hits       *prometheus.Desc
	misses     *prometheus.Desc
	timeouts   *prometheus.Desc
	totalConns *prometheus.Desc
}

// NewRedisPoolCollector creates a collector for the given client
func NewRedisPoolCollector(client *redis.Client) *RedisPoolCollector {
	return &RedisPoolCollector{
		client: client,

		hits: prometheus.NewDesc(
			"marketpulse_redis_pool_hits_total",
			"Times a free connection was found in the pool",
			nil, nil,
		),
		misses: prometheus.NewDesc(
			"marketpulse_redis_pool_misses_total",
			"Times a free connection was not found in the pool",
			nil, nil,
		),
		timeouts: prometheus.NewDesc(
			"marketpulse_redis_pool_timeouts_total",
			"Times a wait for a connection timed out",
			nil, nil,
		),
		totalConns: prometheus.NewDesc(
			"marketpulse_redis_pool_connections",
			"Connections in the pool by state",
			[]string{"state"}, // state: total|idle
			nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *RedisPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.timeouts
	ch <- c.totalConns
}

// Collect implements prometheus.Collector
func (c *RedisPoolCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.client.PoolStats()

	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(stats.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(stats.Misses))
	ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(stats.Timeouts))
	ch <- prometheus.MustNewConstMetric(c.totalConns, prometheus.GaugeValue, float64(stats.TotalConns), "total")
	ch <- prometheus.MustNewConstMetric(c.totalConns, prometheus.GaugeValue, float64(stats.IdleConns), "idle")
}
