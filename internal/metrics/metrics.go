// Package metrics exposes Prometheus counters for admission and lifecycle decisions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eventadmission"

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requestsCreated  *prometheus.CounterVec
	requestsDecided  *prometheus.CounterVec
	requestsCanceled prometheus.Counter
	capacityRetries  *prometheus.CounterVec
	capacityExhaust  *prometheus.CounterVec
	eventTransitions *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "participation_requests_created_total",
			Help:      "Participation requests created, by initial status",
		}, []string{"status"}),
		requestsDecided: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "participation_requests_decided_total",
			Help:      "Participation requests moved out of PENDING by a batch decision, by resulting status",
		}, []string{"status"}),
		requestsCanceled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "participation_requests_canceled_total",
			Help:      "Participation requests canceled by their requester",
		}),
		capacityRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capacity_update_retries_total",
			Help:      "Units of work retried after losing a confirmed-counter race",
		}, []string{"operation"}),
		capacityExhaust: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capacity_update_exhausted_total",
			Help:      "Operations that gave up after the maximum number of counter race retries",
		}, []string{"operation"}),
		eventTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_state_transitions_total",
			Help:      "Applied event lifecycle actions",
		}, []string{"action"}),
	}
	reg.MustRegister(
		m.requestsCreated, m.requestsDecided, m.requestsCanceled,
		m.capacityRetries, m.capacityExhaust, m.eventTransitions,
	)
	return m
}

func (m *Metrics) RequestCreated(status string) {
	if m == nil {
		return
	}
	m.requestsCreated.WithLabelValues(status).Inc()
}

func (m *Metrics) RequestsDecided(status string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.requestsDecided.WithLabelValues(status).Add(float64(n))
}

func (m *Metrics) RequestCanceled() {
	if m == nil {
		return
	}
	m.requestsCanceled.Inc()
}

func (m *Metrics) CapacityRetry(operation string) {
	if m == nil {
		return
	}
	m.capacityRetries.WithLabelValues(operation).Inc()
}

func (m *Metrics) CapacityExhausted(operation string) {
	if m == nil {
		return
	}
	m.capacityExhaust.WithLabelValues(operation).Inc()
}

func (m *Metrics) EventTransition(action string) {
	if m == nil {
		return
	}
	m.eventTransitions.WithLabelValues(action).Inc()
}
