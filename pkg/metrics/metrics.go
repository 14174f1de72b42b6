// Package metrics exposes the Prometheus metrics of Skai. All collectors are
// defined in their own packages (cache, client, debounce, proxy, ratelimit)
// and registered with promauto, so this package only documents them and
// serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by Skai.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - skai_cache_hits_total{tier} (Counter): Fresh hits, tier is "durable" or "server"
//   - skai_cache_misses_total{tier} (Counter): Misses including expired entries
//   - skai_cache_expirations_total{tier} (Counter): Entries dropped for age
//   - skai_cache_evictions_total (Counter): Ephemeral entries evicted for capacity
//   - skai_cache_entries (Gauge): Current ephemeral entry count
//   - skai_cache_errors_total{tier, operation} (Counter): Storage faults absorbed by the cache
//
// Dispatcher Metrics (pkg/client):
//   - skai_requests_total{source} (Counter): Answered requests by source
//   - skai_fetch_duration_seconds{source} (Histogram): Upstream fetch duration
//   - skai_fetch_errors_total{class} (Counter): Fetch failures by class
//   - skai_requests_cancelled_total (Counter): Requests abandoned by the caller
//
// Debounce Metrics (pkg/debounce):
//   - skai_debounce_triggers_total (Counter): Search triggers
//   - skai_debounce_dispatched_total (Counter): Searches dispatched after the window
//   - skai_debounce_dropped_total{reason} (Counter): Outcomes dropped (superseded, cancelled)
//
// Proxy Metrics (pkg/proxy):
//   - skai_proxy_requests_total{code} (Counter): Requests by HTTP status
//   - skai_proxy_request_duration_seconds{code} (Histogram): Request duration
//   - skai_upstream_calls_total{result} (Counter): AI provider calls (ok, error, invalid, rate_limited)
//   - skai_upstream_duration_seconds (Histogram): AI provider call duration
//   - skai_upstream_shared_total (Counter): Requests that joined an in-flight call
//
// Rate Limit Metrics (pkg/ratelimit):
//   - skai_upstream_rate_limit_waits_total (Counter): Calls delayed by the local limit
//   - skai_upstream_rate_limit_blocks_total (Counter): Calls refused after provider rate limiting
//   - skai_upstream_rate_limit_blocked (Gauge): 1 while blocked
//
// Example Prometheus Queries:
//
//   # Proxy Cache Hit Rate
//   sum(rate(skai_cache_hits_total{tier="server"}[5m])) /
//   (sum(rate(skai_cache_hits_total{tier="server"}[5m])) + sum(rate(skai_cache_misses_total{tier="server"}[5m])))
//
//   # Upstream Error Rate
//   rate(skai_upstream_calls_total{result!="ok"}[5m])
//
//   # P95 Generation Latency
//   histogram_quantile(0.95, rate(skai_upstream_duration_seconds_bucket[5m]))
