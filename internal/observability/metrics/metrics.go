package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for the reservation and conversion flows.
type BookingMetrics struct {
	reservationsTotal *prometheus.CounterVec
	conversionsTotal  *prometheus.CounterVec
	rateLimitedTotal  *prometheus.CounterVec
	jobsTotal         *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salonos",
			Subsystem: "reservations",
			Name:      "created_total",
			Help:      "Total public reservation requests accepted",
		}, []string{"tenant"}),
		conversionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salonos",
			Subsystem: "conversions",
			Name:      "total",
			Help:      "Reservation-to-visit conversions",
		}, []string{"tenant", "outcome"}),
		rateLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salonos",
			Subsystem: "public",
			Name:      "rate_limited_total",
			Help:      "Public submissions rejected by the abuse guard",
		}, []string{"dimension"}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salonos",
			Subsystem: "jobs",
			Name:      "processed_total",
			Help:      "Background jobs by type and outcome",
		}, []string{"job_type", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reservationsTotal, m.conversionsTotal, m.rateLimitedTotal, m.jobsTotal)
	return m
}

func (m *BookingMetrics) ObserveReservationCreated(tenant string) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(tenant).Inc()
}

func (m *BookingMetrics) ObserveConversion(tenant, outcome string) {
	if m == nil {
		return
	}
	m.conversionsTotal.WithLabelValues(tenant, outcome).Inc()
}

func (m *BookingMetrics) ObserveRateLimited(dimension string) {
	if m == nil {
		return
	}
	m.rateLimitedTotal.WithLabelValues(dimension).Inc()
}

func (m *BookingMetrics) ObserveJob(jobType, outcome string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(jobType, outcome).Inc()
}
