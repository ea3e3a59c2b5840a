// Package metrics exposes the Prometheus registry used by resilient-net.
// All metrics are defined in their respective packages (cache, retry, queue,
// offline, transport, connectivity) to maintain modularity and avoid
// circular dependencies.
//
// This package provides the HTTP handler and a reference for all available
// metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry Handler serves.
var Gatherer = prometheus.DefaultGatherer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Orchestrator Metrics (pkg/offline):
//   - resilient_executions_total{outcome} (Counter): Submitted requests by outcome (cache_hit, queued, success, failure, passthrough, closed)
//   - resilient_execution_duration_seconds{outcome} (Histogram): Time to decide and run a request
//   - resilient_queue_length (Gauge): Requests waiting in the offline queue
//   - resilient_online (Gauge): 1 while online
//   - resilient_queue_drained_total{result} (Counter): Queued requests replayed by result
//   - resilient_queue_persist_failures_total (Counter): Queue snapshots that could not be saved
//
// Cache Metrics (pkg/cache):
//   - resilient_cache_hits_total (Counter): Cache hits
//   - resilient_cache_misses_total{reason} (Counter): Misses by reason (absent, expired)
//   - resilient_cache_entries (Gauge): Stored entries, expired ones included
//
// Retry Metrics (pkg/retry):
//   - resilient_retries_total (Counter): Retry attempts
//   - resilient_retry_backoff_seconds (Histogram): Backoff before each retry
//   - resilient_retry_exhausted_total (Counter): Attempt cycles that ran out of retries
//
// Queue Persistence Metrics (pkg/queue):
//   - resilient_queue_persistence_operations_total{backend, operation, result} (Counter)
//   - resilient_queue_persistence_duration_seconds{backend, operation} (Histogram)
//
// Transport Metrics (pkg/transport):
//   - resilient_transport_requests_total{method, status} (Counter): Upstream requests
//   - resilient_transport_request_duration_seconds{method} (Histogram): Upstream latency
//   - resilient_transport_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Connectivity Metrics (pkg/connectivity):
//   - resilient_connectivity_probes_total{result} (Counter): Probes by result
//   - resilient_connectivity_transitions_total{to} (Counter): Reported transitions
//   - resilient_connectivity_consecutive_failures (Gauge): Failed probes since the last success
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(resilient_cache_hits_total[5m])) /
//   (sum(rate(resilient_cache_hits_total[5m])) + sum(rate(resilient_cache_misses_total[5m])))
//
//   # Backlog while offline
//   resilient_queue_length and on() resilient_online == 0
//
//   # Replay failure ratio
//   rate(resilient_queue_drained_total{result="failure"}[15m]) / rate(resilient_queue_drained_total[15m])
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(resilient_transport_request_duration_seconds_bucket[5m]))
