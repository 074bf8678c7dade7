// Package metrics registers the Prometheus metrics used by the cache
// adapter. They are registered on import; the server mounts promhttp at
// /metrics to expose them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts gateway lookups by modality and result
	// ("hit", "miss", "error", "skipped").
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semcache_cache_lookups_total",
			Help: "Total cache lookups by result.",
		},
		[]string{"modality", "result"},
	)

	// CacheStores counts write-backs by modality and status ("ok", "error").
	CacheStores = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semcache_cache_stores_total",
			Help: "Total cache write-backs.",
		},
		[]string{"modality", "status"},
	)

	// ProviderCalls counts provider invocations by modality and status
	// ("success", "error").
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semcache_provider_calls_total",
			Help: "Total provider calls made on cache misses.",
		},
		[]string{"modality", "status"},
	)

	// ProviderErrors counts normalized provider failures by code.
	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semcache_provider_errors_total",
			Help: "Total provider failures by code.",
		},
		[]string{"modality", "code"},
	)

	// ModerationRefetches counts cache-bypassing moderation re-fetches.
	ModerationRefetches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "semcache_moderation_refetch_total",
			Help: "Total moderation re-fetches caused by a result count mismatch.",
		},
	)

	// SavedTokens counts tokens served from the cache, by direction
	// ("input", "output").
	SavedTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semcache_saved_tokens_total",
			Help: "Total tokens saved by cache hits.",
		},
		[]string{"direction"},
	)

	// RequestDuration observes time to a response (or to the stream handle)
	// by modality and source ("cache", "provider").
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "semcache_request_duration_seconds",
			Help:    "Request duration in seconds.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"modality", "source"},
	)
)
