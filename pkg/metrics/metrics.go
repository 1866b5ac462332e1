// Package metrics exposes the Prometheus registry used by catalog-proxy.
// Collectors live next to the code they measure (cache, catalog, http) and
// register themselves through promauto; this package serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every collector in this module uses.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Response cache (pkg/cache):
//   - catalog_cache_hits_total (Counter)
//   - catalog_cache_misses_total{reason} (Counter): absent, expired
//   - catalog_cache_evictions_total{reason} (Counter): expired, capacity
//   - catalog_cache_entries (Gauge)
//
// Upstream catalog (pkg/catalog):
//   - catalog_upstream_requests_total{status} (Counter)
//   - catalog_upstream_request_duration_seconds (Histogram)
//   - catalog_upstream_errors_total{class} (Counter): client, server, network, malformed
//   - catalog_upstream_retries_total{error_class} (Counter)
//
// Token source (pkg/auth):
//   - catalog_token_refreshes_total{result} (Counter): success, failure
//
// HTTP (cmd/catalog-proxy):
//   - catalog_http_requests_total{route, status} (Counter)
//   - catalog_http_request_duration_seconds{route} (Histogram)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   rate(catalog_cache_hits_total[5m]) /
//   (rate(catalog_cache_hits_total[5m]) + sum(rate(catalog_cache_misses_total[5m])))
//
//   # Upstream Error Rate
//   sum by (class) (rate(catalog_upstream_errors_total[5m]))
