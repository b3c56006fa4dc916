package todograph

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the graph engine's Prometheus instrumentation.
type Metrics struct {
	Transitions      *prometheus.CounterVec
	BlockersDetected *prometheus.CounterVec
}

// MustNewMetrics registers the engine metrics, reusing already-registered
// collectors.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Transitions: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worktask",
			Subsystem: "todograph",
			Name:      "transitions_total",
			Help:      "Applied todo status transitions by from/to state.",
		}, []string{"from", "to"})),
		BlockersDetected: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worktask",
			Subsystem: "todograph",
			Name:      "blockers_detected_total",
			Help:      "Auto-detected blockers by kind.",
		}, []string{"kind"})),
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
