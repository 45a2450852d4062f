// Package metrics provides Prometheus instrumentation for the matching
// engine: recomputation counts and latency, cache effectiveness, rate-limit
// rejections and enrichment outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Computations counts match set computations, labeled by outcome:
	// "ok", "placeholder", "not_eligible", "rate_limited", "error".
	Computations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "networknav_match_computations_total",
		Help: "Total number of match set computations",
	}, []string{"outcome"})

	// ComputeDuration records end-to-end recomputation latency in seconds.
	ComputeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "networknav_match_compute_duration_seconds",
		Help:    "Match set recomputation latency in seconds",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 3, 5, 10},
	})

	// CacheRequests counts result cache lookups, labeled "hit" or "miss".
	CacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "networknav_match_cache_requests_total",
		Help: "Result cache lookups",
	}, []string{"result"})

	// Enrichment counts conversation-starter enrichment calls, labeled
	// "ok", "error", "timeout" or "empty".
	Enrichment = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "networknav_enrichment_total",
		Help: "Conversation starter enrichment calls by result",
	}, []string{"result"})

	// PoolSize records the number of candidates evaluated per computation.
	PoolSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "networknav_candidate_pool_size",
		Help:    "Candidates evaluated per computation",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
	})

	// CoalescedRequests counts callers that joined an in-flight computation.
	CoalescedRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "networknav_match_coalesced_requests_total",
		Help: "Requests that shared an in-flight recomputation",
	})
)

func init() {
	prometheus.MustRegister(
		Computations,
		ComputeDuration,
		CacheRequests,
		Enrichment,
		PoolSize,
		CoalescedRequests,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
