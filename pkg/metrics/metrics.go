// Package metrics holds the Prometheus collectors exported by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Reservations        *prometheus.CounterVec
	ReservationDuration prometheus.Histogram
	ReconcileFailures   prometheus.Counter
	PrintFailures       prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backoffice",
			Subsystem: "stock",
			Name:      "reservations_total",
			Help:      "Stock reservation attempts by outcome.",
		}, []string{"outcome"}),
		ReservationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "backoffice",
			Subsystem: "stock",
			Name:      "reservation_duration_seconds",
			Help:      "Wall time of a stock reservation attempt, rollback included.",
			Buckets:   prometheus.DefBuckets,
		}),
		ReconcileFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "backoffice",
			Subsystem: "stock",
			Name:      "reconciliation_failures_total",
			Help:      "Compensating increments that could not be confirmed.",
		}),
		PrintFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "backoffice",
			Subsystem: "pos",
			Name:      "receipt_print_failures_total",
			Help:      "Receipts that could not be handed to the printer.",
		}),
	}
	reg.MustRegister(m.Reservations, m.ReservationDuration, m.ReconcileFailures, m.PrintFailures)
	return m
}

func (m *Metrics) ObserveReservation(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Reservations.WithLabelValues(outcome).Inc()
	m.ReservationDuration.Observe(seconds)
}

func (m *Metrics) ReconcileFailed() {
	if m == nil {
		return
	}
	m.ReconcileFailures.Inc()
}

func (m *Metrics) PrintFailed() {
	if m == nil {
		return
	}
	m.PrintFailures.Inc()
}
