package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBookingMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveReservationCreated("studio-luna")
	m.ObserveReservationCreated("studio-luna")
	m.ObserveConversion("studio-luna", "created")
	m.ObserveRateLimited("ip")
	m.ObserveJob("calendar.sync", "completed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reservationsTotal.WithLabelValues("studio-luna")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conversionsTotal.WithLabelValues("studio-luna", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimitedTotal.WithLabelValues("ip")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsTotal.WithLabelValues("calendar.sync", "completed")))
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *BookingMetrics
	assert.NotPanics(t, func() {
		m.ObserveReservationCreated("x")
		m.ObserveConversion("x", "y")
		m.ObserveRateLimited("ip")
		m.ObserveJob("a", "b")
	})
}
