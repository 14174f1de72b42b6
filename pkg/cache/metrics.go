package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tier labels.
const (
	TierDurable = "durable"
	TierServer  = "server"
)

var (
	// CacheHits tracks cache hits by tier
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skai_cache_hits_total",
			Help: "Total number of astronomy event cache hits",
		},
		[]string{"tier"}, // "durable", "server"
	)

	// CacheMisses tracks cache misses by tier
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skai_cache_misses_total",
			Help: "Total number of astronomy event cache misses",
		},
		[]string{"tier"},
	)

	// CacheExpirations tracks entries dropped because they outlived the TTL
	CacheExpirations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skai_cache_expirations_total",
			Help: "Total number of cache entries purged on read after expiry",
		},
		[]string{"tier"},
	)

	// CacheEvictions tracks size-based evictions of the server cache
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "skai_cache_evictions_total",
			Help: "Total number of server cache entries evicted to stay within capacity",
		},
	)

	// CacheEntries tracks the number of live server cache entries
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "skai_cache_entries",
			Help: "Current number of entries held by the server cache",
		},
	)

	// CacheErrors tracks absorbed cache faults
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skai_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"tier", "operation"}, // "get", "set", "delete", "clear", "corrupt"
	)
)
