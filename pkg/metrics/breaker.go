package metrics

import "github.com/prometheus/client_golang/prometheus"

// BreakerMetrics exports circuit breaker state for upstream API clients.
type BreakerMetrics struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	requests    *prometheus.CounterVec
}

// NewBreakerMetrics registers the breaker metrics on the provided registerer.
func NewBreakerMetrics(reg prometheus.Registerer) *BreakerMetrics {
	if reg == nil {
		return &BreakerMetrics{}
	}
	state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
	}, []string{"name"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_transitions_total",
		Help: "Circuit breaker state transitions.",
	}, []string{"name", "from", "to"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_requests_total",
		Help: "Requests through the circuit breaker by result.",
	}, []string{"name", "result"})
	reg.MustRegister(state, transitions, requests)
	return &BreakerMetrics{state: state, transitions: transitions, requests: requests}
}

// SetState records the numeric state for the named breaker.
func (b *BreakerMetrics) SetState(name string, value float64) {
	if b == nil || b.state == nil {
		return
	}
	b.state.WithLabelValues(normalizeLabel(name)).Set(value)
}

// Transition counts a state change.
func (b *BreakerMetrics) Transition(name, from, to string) {
	if b == nil || b.transitions == nil {
		return
	}
	b.transitions.WithLabelValues(normalizeLabel(name), from, to).Inc()
}

// Request counts a call outcome: success, failure or rejected.
func (b *BreakerMetrics) Request(name, result string) {
	if b == nil || b.requests == nil {
		return
	}
	b.requests.WithLabelValues(normalizeLabel(name), normalizeLabel(result)).Inc()
}
