package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBookingMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveBooking("accepted")
	m.ObserveBooking("conflict")
	m.ObserveBooking("conflict")
	m.ObserveResolve("ok", 0.01)
	m.ObserveOutboxPublished(3)
	m.ObserveOutboxPublished(0)

	if got := testutil.ToFloat64(m.bookingTotal.WithLabelValues("conflict")); got != 2 {
		t.Fatalf("expected 2 conflicts, got %v", got)
	}
	if got := testutil.ToFloat64(m.outboxPublished); got != 3 {
		t.Fatalf("expected 3 published, got %v", got)
	}
	if n := testutil.CollectAndCount(m.resolveTotal); n != 1 {
		t.Fatalf("expected one resolve series, got %d", n)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *BookingMetrics
	m.ObserveBooking("accepted")
	m.ObserveResolve("ok", 1)
	m.ObserveScheduleCache("hit")
	m.ObserveOutboxPublished(1)
	m.ObserveOutboxFailure()
	m.ObserveInvalidSchedule()
}
