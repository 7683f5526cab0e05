package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "shipdraft", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "shipdraft", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	// AutosaveWrites counts draft store writes by outcome (ok|error).
	AutosaveWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "shipdraft", Name: "autosave_writes_total", Help: "Local draft store writes by outcome."},
		[]string{"outcome"},
	)
	DraftCacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "shipdraft", Name: "draft_cache_misses_total", Help: "Local draft loads treated as a miss, by reason (absent|corrupt|error)."},
		[]string{"reason"},
	)
	Derivations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "shipdraft", Name: "derivations_total", Help: "Deriver results by outcome (applied|unchanged|orphaned|stale|error)."},
		[]string{"deriver", "outcome"},
	)
	Truncations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "shipdraft", Name: "truncations_total", Help: "Destructive count reductions by resolution (confirmed|canceled)."},
		[]string{"resolution"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(AutosaveWrites)
	reg.MustRegister(DraftCacheMisses)
	reg.MustRegister(Derivations)
	reg.MustRegister(Truncations)
}
