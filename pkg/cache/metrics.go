package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts GETs answered from memory.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_cache_hits_total",
		Help: "Total number of GET requests answered from the request cache",
	})

	// CacheMisses counts GETs that went to the network.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_cache_misses_total",
		Help: "Total number of GET requests not found in the request cache",
	})

	// SharedRequests counts callers that received the result of another
	// caller's in-flight GET.
	SharedRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_cache_shared_total",
		Help: "Total number of GET callers served by an identical in-flight request",
	})

	// Invalidations counts entries evicted by mutating calls.
	Invalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_cache_invalidations_total",
		Help: "Total number of cache entries evicted by mutating requests",
	})

	// Entries tracks entries currently held across all managers.
	Entries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_cache_entries",
		Help: "Current number of entries in the request cache",
	})

	// InFlight tracks GETs currently on the network.
	InFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_cache_inflight",
		Help: "Current number of in-flight GET requests",
	})
)
