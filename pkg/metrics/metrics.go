// Package metrics exposes the Prometheus registry used by the storefront
// client packages. Metrics are defined in their respective packages
// (session, cache, client, proxy) to avoid circular dependencies.
//
// This package documents the metric catalogue and serves it over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package registers into via promauto.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the matching gatherer for Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the metrics gathered from Gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Names lists every metric family registered by the storefront packages.
var Names = []string{
	// pkg/session
	"storefront_session_storage_errors_total",
	// pkg/cache
	"storefront_cache_hits_total",
	"storefront_cache_misses_total",
	"storefront_cache_shared_total",
	"storefront_cache_invalidations_total",
	"storefront_cache_entries",
	"storefront_cache_inflight",
	// pkg/client
	"storefront_api_requests_total",
	"storefront_api_request_duration_seconds",
	"storefront_api_errors_total",
	"storefront_api_session_rejections_total",
	// pkg/proxy
	"storefront_proxy_requests_total",
	"storefront_proxy_upstream_duration_seconds",
}

// Metrics Documentation
//
// Session Metrics (pkg/session):
//   - storefront_session_storage_errors_total{operation} (Counter): Storage get/set/delete failures swallowed by the store
//
// Cache Metrics (pkg/cache):
//   - storefront_cache_hits_total (Counter): GET calls answered from a fresh entry
//   - storefront_cache_misses_total (Counter): GET calls that went to the network
//   - storefront_cache_shared_total (Counter): GET calls that joined an in-flight call
//   - storefront_cache_invalidations_total (Counter): Entries evicted by mutating calls
//   - storefront_cache_entries (Gauge): Entries currently held
//   - storefront_cache_inflight (Gauge): Network calls currently in flight
//
// Request Metrics (pkg/client):
//   - storefront_api_requests_total{method, status} (Counter): Requests by method and HTTP status
//   - storefront_api_request_duration_seconds{method} (Histogram): Request duration
//   - storefront_api_errors_total{class} (Counter): Errors by class (client, server, auth, network, format)
//   - storefront_api_session_rejections_total (Counter): Sessions expired after an auth failure
//
// Proxy Metrics (pkg/proxy):
//   - storefront_proxy_requests_total{method, status} (Counter): Proxied requests by relayed status
//   - storefront_proxy_upstream_duration_seconds (Histogram): Upstream round trip duration
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(storefront_cache_hits_total[5m])) /
//   (sum(rate(storefront_cache_hits_total[5m])) + sum(rate(storefront_cache_misses_total[5m])))
//
//   # Deduplicated share of GET traffic
//   rate(storefront_cache_shared_total[5m]) / rate(storefront_api_requests_total{method="GET"}[5m])
//
//   # Session expiries
//   increase(storefront_api_session_rejections_total[1h])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(storefront_api_request_duration_seconds_bucket[5m]))
