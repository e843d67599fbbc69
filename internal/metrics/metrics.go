package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for specflow
type Metrics struct {
	// Generation client metrics
	GenerationCalls   *prometheus.CounterVec
	GenerationRetries *prometheus.CounterVec
	GenerationLatency *prometheus.HistogramVec
	GenerationTokens  *prometheus.CounterVec

	// Parameter resolver metrics
	ResolveCacheHits   prometheus.Counter
	ResolveCacheMisses prometheus.Counter

	// Dispatcher metrics
	DispatchedComponents *prometheus.CounterVec
	DispatchBatches      prometheus.Counter
	SelfReviewFailures   prometheus.Counter

	// Phase engine metrics
	PhaseExecutions *prometheus.CounterVec
	PhaseDuration   *prometheus.HistogramVec
	ValidationRuns  *prometheus.CounterVec
	RemedyRuns      *prometheus.CounterVec
	SnapshotsTaken  prometheus.Counter
}

// New creates a Metrics set registered against the given registerer.
// Pass prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		GenerationCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specflow",
			Name:      "generation_calls_total",
			Help:      "Total generation calls by backend and outcome",
		}, []string{"backend", "outcome"}),
		GenerationRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specflow",
			Name:      "generation_retries_total",
			Help:      "Total generation retries by backend and error kind",
		}, []string{"backend", "kind"}),
		GenerationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "specflow",
			Name:      "generation_latency_seconds",
			Help:      "Generation call latency by backend",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"backend"}),
		GenerationTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specflow",
			Name:      "generation_tokens_total",
			Help:      "Total tokens consumed by backend and direction",
		}, []string{"backend", "direction"}),
		ResolveCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "specflow",
			Name:      "param_cache_hits_total",
			Help:      "Parameter resolver cache hits",
		}),
		ResolveCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "specflow",
			Name:      "param_cache_misses_total",
			Help:      "Parameter resolver cache misses",
		}),
		DispatchedComponents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specflow",
			Name:      "dispatched_components_total",
			Help:      "Dispatched components by outcome (success, failed, skipped)",
		}, []string{"outcome"}),
		DispatchBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "specflow",
			Name:      "dispatch_batches_total",
			Help:      "Parallel dispatch batches executed",
		}),
		SelfReviewFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "specflow",
			Name:      "self_review_failures_total",
			Help:      "Components rejected by the self-review gate",
		}),
		PhaseExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specflow",
			Name:      "phase_executions_total",
			Help:      "Phase executions by phase and status",
		}, []string{"phase", "status"}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "specflow",
			Name:      "phase_duration_seconds",
			Help:      "Phase execution duration by phase",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"phase"}),
		ValidationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specflow",
			Name:      "validation_runs_total",
			Help:      "Validation runs by phase and result",
		}, []string{"phase", "result"}),
		RemedyRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specflow",
			Name:      "remedy_runs_total",
			Help:      "Auto-remedy runs by phase and result",
		}, []string{"phase", "result"}),
		SnapshotsTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "specflow",
			Name:      "snapshots_taken_total",
			Help:      "Phase snapshots captured",
		}),
	}

	reg.MustRegister(
		m.GenerationCalls,
		m.GenerationRetries,
		m.GenerationLatency,
		m.GenerationTokens,
		m.ResolveCacheHits,
		m.ResolveCacheMisses,
		m.DispatchedComponents,
		m.DispatchBatches,
		m.SelfReviewFailures,
		m.PhaseExecutions,
		m.PhaseDuration,
		m.ValidationRuns,
		m.RemedyRuns,
		m.SnapshotsTaken,
	)

	return m
}

// Nop returns a Metrics set registered against a private registry.
// Useful for callers that do not care about instrumentation.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
