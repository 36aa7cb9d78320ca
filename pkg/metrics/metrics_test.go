package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveReservation("reserved", 0.01)
	m.ObserveReservation("reserved", 0.02)
	m.ObserveReservation("insufficient_stock", 0.01)
	m.ReconcileFailed()

	if got := testutil.ToFloat64(m.Reservations.WithLabelValues("reserved")); got != 2 {
		t.Fatalf("expected 2 reserved, got %v", got)
	}
	if got := testutil.ToFloat64(m.ReconcileFailures); got != 1 {
		t.Fatalf("expected 1 reconcile failure, got %v", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveReservation("reserved", 1)
	m.ReconcileFailed()
	m.PrintFailed()
}
