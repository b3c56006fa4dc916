package analysis

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the pipeline's Prometheus instrumentation.
type Metrics struct {
	RunDuration    *prometheus.HistogramVec
	StageFailures  *prometheus.CounterVec
	DegradedRuns   prometheus.Counter
	TodosGenerated prometheus.Histogram
}

// MustNewMetrics registers the pipeline metrics, reusing collectors that are
// already registered so repeated wiring in tests does not panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RunDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "worktask",
			Subsystem: "analysis",
			Name:      "run_duration_seconds",
			Help:      "End-to-end analysis run duration by outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"outcome"})),
		StageFailures: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worktask",
			Subsystem: "analysis",
			Name:      "stage_failures_total",
			Help:      "Pipeline stage failures by stage name.",
		}, []string{"stage"})),
		DegradedRuns: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "worktask",
			Subsystem: "analysis",
			Name:      "degraded_runs_total",
			Help:      "Analysis runs that completed with a degraded capability.",
		})),
		TodosGenerated: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "worktask",
			Subsystem: "analysis",
			Name:      "todos_generated",
			Help:      "Todos generated per analysis run.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
		})),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) C {
	if reg == nil {
		return collector
	}
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector.(C)
		}
		panic(err)
	}
	return collector
}
