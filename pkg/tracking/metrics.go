package tracking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeCacheHit  = "cache_hit"
	outcomeCoalesced = "coalesced"
	outcomeSuccess   = "success"
	outcomeFailure   = "failure"
)

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_queries_total",
		Help: "Tracking lookups by outcome (cache_hit, coalesced, success, failure)",
	}, []string{"outcome"})

	lookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracking_lookup_duration_seconds",
		Help:    "Duration of provider lookups including retries and fallback",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	inflightLookups = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracking_inflight_lookups",
		Help: "Provider lookups currently in flight",
	})

	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracking_batch_size",
		Help:    "Number of tracking numbers per batch",
		Buckets: []float64{1, 5, 10, 20, 30, 40, 50},
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracking_batch_duration_seconds",
		Help:    "Duration of batch lookups",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120},
	})
)
