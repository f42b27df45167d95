// Package metrics provides the centralized Prometheus metrics reference for
// the registry client. All metrics are defined in their respective packages
// (client, cache, ratelimit) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the registry client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - registry_rate_limit_wait_seconds (Histogram): Time spent waiting on the local limiter
//   - registry_rate_limit_exhausted_total (Counter): Acquisitions abandoned past the wait budget
//   - registry_throttle_sleeps_total (Counter): Sleeps taken by the interval throttle
//
// Cache Metrics (pkg/cache):
//   - registry_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - registry_cache_misses_total (Counter): Cache misses
//   - registry_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - registry_requests_total{path, status} (Counter): Total requests by path and HTTP status
//   - registry_request_duration_seconds{path} (Histogram): Request duration by path, retries included
//   - registry_errors_total{kind} (Counter): Errors by kind (unauthorized, bad_request,
//     rate_limited, upstream_unavailable, network, malformed_response, limiter_exhausted)
//
// Retry Metrics (pkg/client):
//   - registry_retries_total{kind} (Counter): Retry attempts by error kind
//   - registry_retry_backoff_seconds{kind} (Histogram): Backoff duration by error kind
//   - registry_retry_exhausted_total{kind} (Counter): Requests that exhausted max retries
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(registry_cache_hits_total[5m])) /
//   (sum(rate(registry_cache_hits_total[5m])) + sum(rate(registry_cache_misses_total[5m])))
//
//   # Request Error Rate
//   rate(registry_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(registry_request_duration_seconds_bucket[5m]))
//
//   # Upstream Rate-Limit Pressure
//   rate(registry_errors_total{kind="rate_limited"}[5m])
