// Package metrics exposes the engine's Prometheus instrumentation.
// Collectors are registered once on the default registry; callers that
// need isolation (tests) can build a Metrics against their own registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the engine emits.
type Metrics struct {
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	BreakerTransitions *prometheus.CounterVec // dependency, from, to
	BreakerRejections  *prometheus.CounterVec // dependency
	RetryAttempts      *prometheus.CounterVec // operation

	RegionOutcomes  *prometheus.CounterVec // region, status
	AnalysisSeconds prometheus.Histogram
	FetchSeconds    *prometheus.HistogramVec // dependency

	Recommendations   *prometheus.CounterVec // action
	DegradedAnalyses  prometheus.Counter
	EstimatedSavings  prometheus.Gauge
	ResourcesAnalyzed prometheus.Counter
}

// New registers the engine's collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "cost_advisor_cache_hits_total",
			Help: "Cost snapshot cache hits.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "cost_advisor_cache_misses_total",
			Help: "Cost snapshot cache misses.",
		}),
		BreakerTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cost_advisor_breaker_transitions_total",
			Help: "Circuit breaker state transitions.",
		}, []string{"dependency", "from", "to"}),
		BreakerRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cost_advisor_breaker_rejections_total",
			Help: "Calls rejected while a circuit was open.",
		}, []string{"dependency"}),
		RetryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cost_advisor_retry_attempts_total",
			Help: "Retry attempts beyond the first call, per operation.",
		}, []string{"operation"}),
		RegionOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cost_advisor_region_outcomes_total",
			Help: "Per-region analysis outcomes.",
		}, []string{"region", "status"}),
		AnalysisSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cost_advisor_analysis_duration_seconds",
			Help:    "End-to-end duration of one analysis run.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		FetchSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cost_advisor_fetch_duration_seconds",
			Help:    "Duration of upstream dependency calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"dependency"}),
		Recommendations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cost_advisor_recommendations_total",
			Help: "Recommendations produced, by action.",
		}, []string{"action"}),
		DegradedAnalyses: factory.NewCounter(prometheus.CounterOpts{
			Name: "cost_advisor_degraded_analyses_total",
			Help: "Resources analyzed via the rule-based fallback.",
		}),
		EstimatedSavings: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cost_advisor_estimated_monthly_savings_usd",
			Help: "Total estimated monthly savings from the latest run.",
		}),
		ResourcesAnalyzed: factory.NewCounter(prometheus.CounterOpts{
			Name: "cost_advisor_resources_analyzed_total",
			Help: "Resources analyzed across all runs.",
		}),
	}
}

// NewDefault registers against the default Prometheus registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
