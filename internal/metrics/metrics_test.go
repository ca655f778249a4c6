package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSchedulingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)

	m.ObserveBooking("Walk-in", "ok")
	m.ObserveBooking("Walk-in", "ok")
	m.ObserveWalkInBranch("spaced")
	m.ObserveBreak("confirm", "ok")
	m.AddNoShows(3)
	m.AddNoShows(0)
	m.ObserveLatency("walkin", 0.02)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookingsTotal.WithLabelValues("Walk-in", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.walkInBranch.WithLabelValues("spaced")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.noShowsTotal))
}

func TestSchedulingMetricsNilSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveBooking("Advanced Booking", "ok")
	m.ObserveWalkInBranch("consecutive")
	m.ObserveBreak("cancel", "error")
	m.AddNoShows(2)
	m.ObserveLatency("sweep", 0.1)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "error", Outcome(errors.New("x")))
}
