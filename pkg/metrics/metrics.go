// Package metrics provides the centralized Prometheus metrics registry for the
// KIS feed client. All metrics are defined in their respective packages (feed,
// client, cache, ratelimit, prefetch) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the KIS feed client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Feed Metrics (pkg/feed):
//   - kis_feed_loads_total{kind, outcome} (Counter): Page loads by kind (loading_first, loading_next)
//     and outcome (success, not_modified, not_found, error, superseded, canceled)
//   - kis_feed_load_duration_seconds{kind} (Histogram): Page load duration by kind
//   - kis_feed_pages_merged_total{origin} (Counter): Pages merged into the feed by origin (cache, network)
//   - kis_feed_items (Gauge): Current number of items in the flattened feed
//   - kis_feed_favorite_toggles_total{action, outcome} (Counter): Favorite toggles by action and outcome
//
// Quota Metrics (pkg/ratelimit):
//   - kis_quota_remaining (Gauge): Requests remaining in the current gateway quota window
//   - kis_rate_limit_blocks_total (Counter): Requests blocked due to the critical quota margin
//   - kis_rate_limit_throttles_total (Counter): Requests throttled due to the warning quota margin
//
// Cache Metrics (pkg/cache):
//   - kis_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - kis_cache_misses_total (Counter): Cache misses
//   - kis_cache_size_bytes{layer="redis"} (Gauge): Current cache size in bytes
//   - kis_304_responses_total (Counter): 304 Not Modified responses
//   - kis_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - kis_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - kis_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - kis_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - kis_retries_total{error_class} (Counter): Retry attempts by error class
//   - kis_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - kis_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Prefetch Metrics (pkg/prefetch):
//   - kis_prefetch_pages_total{outcome} (Counter): Pages touched by the warmer by outcome (fetched, cached, failed)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(kis_cache_hits_total[5m])) /
//   (sum(rate(kis_cache_hits_total[5m])) + sum(rate(kis_cache_misses_total[5m])))
//
//   # Quota Pressure
//   kis_quota_remaining < 10
//
//   # Load Failure Rate
//   sum(rate(kis_feed_loads_total{outcome="error"}[5m])) / sum(rate(kis_feed_loads_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(kis_request_duration_seconds_bucket[5m]))
//
//   # 304 Response Rate
//   rate(kis_304_responses_total[5m]) / rate(kis_requests_total[5m])
