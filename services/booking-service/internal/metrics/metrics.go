package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for availability and booking flows.
// All methods are safe on a nil receiver so tests can pass nil.
type BookingMetrics struct {
	resolveTotal     *prometheus.CounterVec
	resolveLatency   prometheus.Histogram
	bookingTotal     *prometheus.CounterVec
	scheduleCache    *prometheus.CounterVec
	outboxPublished  prometheus.Counter
	outboxFailures   prometheus.Counter
	invalidSchedules prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		resolveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "servicebay",
			Subsystem: "availability",
			Name:      "resolve_total",
			Help:      "Availability resolutions by outcome",
		}, []string{"outcome"}),
		resolveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "servicebay",
			Subsystem: "availability",
			Name:      "resolve_duration_seconds",
			Help:      "Latency of availability resolution including store reads",
			Buckets:   prometheus.DefBuckets,
		}),
		bookingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "servicebay",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		scheduleCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "servicebay",
			Subsystem: "schedule_cache",
			Name:      "requests_total",
			Help:      "Working-hours cache lookups by result",
		}, []string{"result"}),
		outboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "servicebay",
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox events written to Kafka",
		}),
		outboxFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "servicebay",
			Subsystem: "outbox",
			Name:      "publish_failures_total",
			Help:      "Outbox batches that failed to publish",
		}),
		invalidSchedules: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "servicebay",
			Subsystem: "availability",
			Name:      "invalid_schedule_total",
			Help:      "Stored working days rejected as invalid during resolution",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.resolveTotal,
		m.resolveLatency,
		m.bookingTotal,
		m.scheduleCache,
		m.outboxPublished,
		m.outboxFailures,
		m.invalidSchedules,
	)
	return m
}

func (m *BookingMetrics) ObserveResolve(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.resolveTotal.WithLabelValues(outcome).Inc()
	m.resolveLatency.Observe(seconds)
}

func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveScheduleCache(result string) {
	if m == nil {
		return
	}
	m.scheduleCache.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveOutboxPublished(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outboxPublished.Add(float64(n))
}

func (m *BookingMetrics) ObserveOutboxFailure() {
	if m == nil {
		return
	}
	m.outboxFailures.Inc()
}

func (m *BookingMetrics) ObserveInvalidSchedule() {
	if m == nil {
		return
	}
	m.invalidSchedules.Inc()
}
