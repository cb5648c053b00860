// Package metrics provides the Prometheus registry and scrape handler for the
// tracking proxy. All metrics are defined in their respective packages
// (client, cache, tracking, ratelimit, monitor) to maintain modularity and
// avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the tracking proxy.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

var buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "tracking_build_info",
	Help: "Build information of the running binary (always 1)",
}, []string{"version"})

// SetBuildInfo publishes the running version.
func SetBuildInfo(version string) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(version).Set(1)
}

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Provider Metrics (pkg/client):
//   - tracking_provider_requests_total{endpoint, status} (Counter): Requests by endpoint (primary, official) and HTTP status
//   - tracking_provider_request_duration_seconds{endpoint} (Histogram): Single attempt duration
//   - tracking_provider_errors_total{class} (Counter): Errors by class (client, server, payload, timeout, network)
//   - tracking_provider_fallbacks_total{outcome} (Counter): Official endpoint fallbacks by outcome
//
// Retry Metrics (pkg/client):
//   - tracking_provider_retries_total{error_class} (Counter): Retry attempts by error class
//   - tracking_provider_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - tracking_provider_retry_exhausted_total{error_class} (Counter): Lookups that exhausted max retries
//
// Lookup Metrics (pkg/tracking):
//   - tracking_queries_total{outcome} (Counter): Lookups by outcome (cache_hit, coalesced, success, failure)
//   - tracking_lookup_duration_seconds (Histogram): Provider lookup duration including retries
//   - tracking_inflight_lookups (Gauge): Provider lookups currently running
//   - tracking_batch_size (Histogram): Numbers per batch
//   - tracking_batch_duration_seconds (Histogram): Batch duration
//
// Cache Metrics (pkg/cache):
//   - tracking_cache_hits_total{layer} (Counter): Cache hits by layer (memory, redis)
//   - tracking_cache_misses_total{layer} (Counter): Cache misses by layer
//   - tracking_cache_evictions_total{layer} (Counter): Evicted or expired entries
//   - tracking_cache_entries{layer} (Gauge): Entries held by the memory tier
//   - tracking_cache_errors_total{operation} (Counter): Cache operation errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - tracking_rate_limit_allowed_total (Counter): Requests admitted
//   - tracking_rate_limit_blocks_total (Counter): Requests rejected with 429
//   - tracking_rate_limit_errors_total (Counter): Limiter failures (requests let through)
//
// Monitor Metrics (pkg/monitor):
//   - tracking_monitor_endpoint_up{endpoint} (Gauge): 1 when the last check was healthy
//   - tracking_monitor_response_seconds{endpoint} (Gauge): Response time of the last check
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(tracking_queries_total{outcome="cache_hit"}[5m])) /
//   sum(rate(tracking_queries_total[5m]))
//
//   # Provider Error Rate
//   sum by (class) (rate(tracking_provider_errors_total[5m]))
//
//   # P95 Lookup Latency
//   histogram_quantile(0.95, rate(tracking_lookup_duration_seconds_bucket[5m]))
//
//   # Endpoints Down
//   tracking_monitor_endpoint_up == 0
