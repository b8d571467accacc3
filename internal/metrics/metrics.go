// Package metrics exposes Prometheus instrumentation for the intake flow.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// IntakeMetrics counts turns and dispatch outcomes.
type IntakeMetrics struct {
	turnsTotal       *prometheus.CounterVec
	dispatchTotal    *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
}

// NewIntakeMetrics registers the intake collectors on reg, or on the default
// registerer when reg is nil.
func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "turns_total",
			Help:      "Inbound conversation turns by kind and outcome",
		}, []string{"kind", "outcome"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "dispatch_total",
			Help:      "Completed reports by delivery channel and result",
		}, []string{"channel", "result"}),
		deliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "intake",
			Name:      "delivery_duration_seconds",
			Help:      "Duration of the single outbound delivery attempt",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.dispatchTotal, m.deliveryDuration)
	return m
}

// ObserveTurn records one inbound turn.
func (m *IntakeMetrics) ObserveTurn(kind, outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveDispatch records the result of one dispatch.
func (m *IntakeMetrics) ObserveDispatch(channel, result string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(channel, result).Inc()
}

// ObserveDelivery records how long a delivery attempt took.
func (m *IntakeMetrics) ObserveDelivery(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.deliveryDuration.WithLabelValues(channel).Observe(seconds)
}
