package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for booking and break flows.
type SchedulingMetrics struct {
	bookingsTotal  *prometheus.CounterVec
	walkInBranch   *prometheus.CounterVec
	breaksTotal    *prometheus.CounterVec
	noShowsTotal   prometheus.Counter
	operationDelay *prometheus.HistogramVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking attempts by channel and outcome",
		}, []string{"channel", "outcome"}),
		walkInBranch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "walkin_placements_total",
			Help:      "Walk-in placements by placement branch",
		}, []string{"branch"}),
		breaksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "break_operations_total",
			Help:      "Break propose/confirm/cancel operations by outcome",
		}, []string{"operation", "outcome"}),
		noShowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "noshow_transitions_total",
			Help:      "Pending appointments swept to No-show",
		}),
		operationDelay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "operation_latency_seconds",
			Help:      "Latency of scheduling operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.walkInBranch, m.breaksTotal, m.noShowsTotal, m.operationDelay)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(channel, outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(channel, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveWalkInBranch(branch string) {
	if m == nil {
		return
	}
	m.walkInBranch.WithLabelValues(branch).Inc()
}

func (m *SchedulingMetrics) ObserveBreak(operation, outcome string) {
	if m == nil {
		return
	}
	m.breaksTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *SchedulingMetrics) AddNoShows(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.noShowsTotal.Add(float64(n))
}

func (m *SchedulingMetrics) ObserveLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.operationDelay.WithLabelValues(operation).Observe(seconds)
}

// Outcome buckets an error into a metrics label.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
