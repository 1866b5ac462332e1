package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks entries served from the cache
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_cache_hits_total",
			Help: "Total number of response cache hits",
		},
	)

	// CacheMisses tracks lookups that found nothing servable
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_misses_total",
			Help: "Total number of response cache misses",
		},
		[]string{"reason"}, // "absent", "expired"
	)

	// CacheEvictions tracks entries removed before being overwritten
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_evictions_total",
			Help: "Total number of response cache evictions",
		},
		[]string{"reason"}, // "expired", "capacity"
	)

	// CacheEntries tracks the number of entries currently held
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_cache_entries",
			Help: "Current number of entries in the response cache",
		},
	)
)
