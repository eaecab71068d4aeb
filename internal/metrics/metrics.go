// Package metrics provides Prometheus metrics for the dispatch layer.
// It tracks upstream request outcomes, key lifecycle events, and batch
// progress.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dispatch"

// LatencyBuckets defines histogram buckets for upstream call latency
// (in seconds). Text-generation calls routinely run into tens of seconds.
var LatencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 20.0, 30.0, 60.0, 120.0,
}

var (
	// UpstreamRequests counts upstream HTTP attempts by outcome.
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total upstream request attempts",
		},
		[]string{"provider", "model", "outcome"},
	)

	// UpstreamLatency tracks upstream call latency.
	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_latency_seconds",
			Help:      "Upstream call latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"provider", "model"},
	)

	// RateLimitHits counts transient rate-limit responses (429/503 or
	// matching error text) before any retry handling.
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total transient rate-limit signals from upstreams",
		},
		[]string{"provider"},
	)

	// KeyRequests counts successful requests recorded against pool keys.
	KeyRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_requests_total",
			Help:      "Total successful requests recorded per credential pool",
		},
		[]string{"provider"},
	)

	// KeyBans counts keys banned after exhausting same-key retries.
	KeyBans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_bans_total",
			Help:      "Total credential bans following rate-limit pressure",
		},
		[]string{"provider"},
	)

	// PoolRecoveries counts full-cycle pool recoveries.
	PoolRecoveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_recoveries_total",
			Help:      "Total full-cycle credential pool recoveries",
		},
		[]string{"provider"},
	)

	// PromptsProcessed counts work items completed by the dispatch queue.
	PromptsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompts_processed_total",
			Help:      "Total work items processed",
		},
		[]string{"outcome"},
	)
)

// Outcome label values for UpstreamRequests and PromptsProcessed.
const (
	OutcomeSuccess     = "success"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
	OutcomePass        = "pass"
	OutcomeFail        = "fail"
)
