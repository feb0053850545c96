package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Payment verification outcomes
const (
	OutcomeApplied  = "applied"
	OutcomeReplayed = "replayed"
	OutcomeMismatch = "mismatch"
	OutcomeRejected = "rejected"
)

// Metrics holds the marketplace's Prometheus collectors
type Metrics struct {
	BookingsCreated      *prometheus.CounterVec
	BookingTransitions   *prometheus.CounterVec
	PaymentVerifications *prometheus.CounterVec
	ReconciliationQueue  prometheus.Gauge
	HTTPRequestDuration  *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BookingsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bookings_created_total",
			Help: "Total number of bookings created by payment method",
		}, []string{"payment_method"}),

		BookingTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_status_transitions_total",
			Help: "Total number of applied booking status transitions by target status",
		}, []string{"status"}),

		PaymentVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_verifications_total",
			Help: "Total number of payment verifications by outcome",
		}, []string{"outcome"}),

		ReconciliationQueue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "payment_reconciliation_queue_size",
			Help: "Unresolved amount mismatches awaiting manual reconciliation",
		}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}
