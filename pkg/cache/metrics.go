package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (memory, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_cache_hits_total",
			Help: "Total number of tracking cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses by layer
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_cache_misses_total",
			Help: "Total number of tracking cache misses",
		},
		[]string{"layer"},
	)

	// CacheEvictions tracks entries dropped for capacity or age
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_cache_evictions_total",
			Help: "Total number of entries evicted from the memory cache",
		},
		[]string{"layer"},
	)

	// CacheEntries tracks the current number of entries in the memory tier
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracking_cache_entries",
			Help: "Current number of entries in the memory cache",
		},
		[]string{"layer"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
