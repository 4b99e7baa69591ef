package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TilesRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "styles_tile_requests_total",
		Help: "Total number of tile requests accepted by the provider",
	})

	TilesOutOfRange = promauto.NewCounter(prometheus.CounterOpts{
		Name: "styles_tile_out_of_range_total",
		Help: "Total number of tile requests rejected for their level",
	})

	TilesAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "styles_tile_attempts_total",
		Help: "Total number of attempts issued to the transport",
	})

	TilesRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "styles_tile_retries_total",
		Help: "Total number of retries granted by retry observers",
	})

	TilesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "styles_tile_received_total",
		Help: "Total number of tile requests that delivered an image",
	})

	TilesFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "styles_tile_failures_total",
		Help: "Total number of tile requests that ended in failure",
	})

	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "styles_upstream_requests_total",
		Help: "Total number of upstream style tile requests by status code",
	}, []string{"code"})

	UpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "styles_upstream_latency_seconds",
		Help:    "Latency of upstream tile fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "styles_cache_hits_total",
		Help: "Total number of tile cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "styles_cache_misses_total",
		Help: "Total number of tile cache misses",
	})

	CacheStores = promauto.NewCounter(prometheus.CounterOpts{
		Name: "styles_cache_stores_total",
		Help: "Total number of tile cache store operations",
	})

	// Redis metrics
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "styles_redis_operation_duration_seconds",
		Help:    "Duration of Redis operations in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})

	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "styles_redis_errors_total",
		Help: "Total number of Redis errors",
	}, []string{"operation"})

	SeedTiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "styles_seed_tiles_total",
		Help: "Total number of tiles processed by seeding, by outcome",
	}, []string{"outcome"})
)
