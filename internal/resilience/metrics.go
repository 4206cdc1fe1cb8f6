package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BreakerState exposes 0=closed, 1=open, 2=half-open per target.
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "agency",
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Current circuit breaker state (0 closed, 1 open, 2 half-open).",
	}, []string{"target"})

	BreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agency",
		Subsystem: "breaker",
		Name:      "transitions_total",
		Help:      "Circuit breaker state transitions.",
	}, []string{"target", "from", "to"})

	// BreakerRejected counts calls refused while the circuit was open.
	BreakerRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agency",
		Subsystem: "breaker",
		Name:      "rejected_total",
		Help:      "Calls short-circuited by an open breaker.",
	}, []string{"target"})
)
