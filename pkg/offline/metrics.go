package offline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the orchestrator.
var (
	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resilient_executions_total",
		Help: "Total submitted requests by outcome",
	}, []string{"outcome"}) // cache_hit, queued, success, failure, passthrough, closed

	executionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resilient_execution_duration_seconds",
		Help:    "Time spent deciding and running a request, by outcome",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"outcome"})

	queueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "resilient_queue_length",
		Help: "Requests currently waiting in the offline queue",
	})

	onlineGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "resilient_online",
		Help: "1 when the orchestrator considers itself online",
	})

	drainedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resilient_queue_drained_total",
		Help: "Queued requests replayed by result",
	}, []string{"result"})

	persistFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resilient_queue_persist_failures_total",
		Help: "Queue snapshots that could not be persisted",
	})
)
