package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks lookups answered with a live entry
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resilient_cache_hits_total",
			Help: "Total number of response cache hits",
		},
	)

	// CacheMisses tracks lookups without a live entry
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilient_cache_misses_total",
			Help: "Total number of response cache misses",
		},
		[]string{"reason"}, // "absent", "expired"
	)

	// CacheEntries tracks the number of stored entries, expired ones included
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resilient_cache_entries",
			Help: "Current number of entries held by the response cache",
		},
	)
)
