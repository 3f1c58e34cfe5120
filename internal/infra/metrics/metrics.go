// Package metrics provides the prometheus collectors of the regional cache,
// the fetch orchestrator and the token provider.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts cache reads.
	// Labels:
	//   - result: "hit", "miss", "expired"
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunemap_cache_lookups_total",
			Help: "Total number of regional cache lookups",
		},
		[]string{"result"},
	)

	// CacheRemovals counts entries dropped by the cache itself.
	// Labels:
	//   - reason: "evicted", "expired", "removed", "cleared"
	CacheRemovals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunemap_cache_removals_total",
			Help: "Total number of regional cache entries removed",
		},
		[]string{"reason"},
	)

	// CacheEntries tracks the number of live entries after each mutation.
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tunemap_cache_entries",
			Help: "Number of entries currently held by the regional cache",
		},
	)

	// CachePersistFailures counts failed durability writes.
	CachePersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tunemap_cache_persist_failures_total",
			Help: "Total number of failed writes of the cache document",
		},
	)

	// RegionFetches counts per-country fetches.
	// Labels:
	//   - strategy: strategy that produced the song, "none" when nothing did
	//   - outcome: "success", "not_found", or a remote error kind
	RegionFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunemap_region_fetches_total",
			Help: "Total number of per-country top song fetches",
		},
		[]string{"strategy", "outcome"},
	)

	// RefreshDuration measures whole Refresh calls, including cache hits.
	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tunemap_refresh_duration_seconds",
			Help:    "Duration of regional refresh operations in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// TokenExchanges counts client-credentials exchanges.
	// Labels:
	//   - outcome: "success", "failure"
	TokenExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunemap_token_exchanges_total",
			Help: "Total number of client-credentials token exchanges",
		},
		[]string{"outcome"},
	)

	// TokenInvalidations counts tokens discarded after an authorization failure.
	TokenInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tunemap_token_invalidations_total",
			Help: "Total number of bearer tokens discarded after a 401",
		},
	)

	// BreakerState reports the gateway circuit breaker state.
	// 0 closed, 1 half-open, 2 open.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tunemap_gateway_breaker_state",
			Help: "State of the music API circuit breaker (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)
