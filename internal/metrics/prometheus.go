package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the notary
type PrometheusMetrics struct {
	// Notarization metrics
	RegistrationsTotal   *prometheus.CounterVec
	RegistrationDuration prometheus.Histogram
	SubmitAttemptsTotal  *prometheus.CounterVec

	// Verification metrics
	VerificationsTotal   *prometheus.CounterVec
	VerificationDuration prometheus.Histogram
	AuditEntriesTotal    prometheus.Counter

	// Consolidation metrics
	ConsolidationsTotal    *prometheus.CounterVec
	ConsolidationEntrySize prometheus.Histogram

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ComponentHealth *prometheus.GaugeVec
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		RegistrationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_registrations_total",
				Help: "Total number of digest registrations on the BFA",
			},
			[]string{"status"},
		),

		RegistrationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bfa_registration_duration_seconds",
				Help:    "Time spent registering a digest on the BFA",
				Buckets: prometheus.DefBuckets,
			},
		),

		SubmitAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_submit_attempts_total",
				Help: "Transaction submission attempts by outcome",
			},
			[]string{"outcome"},
		),

		VerificationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_verifications_total",
				Help: "Total number of integrity verifications by result",
			},
			[]string{"result"},
		),

		VerificationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bfa_verification_duration_seconds",
				Help:    "Time spent verifying a record against the BFA",
				Buckets: prometheus.DefBuckets,
			},
		),

		AuditEntriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bfa_audit_entries_total",
				Help: "Total number of audit ledger entries written",
			},
		),

		ConsolidationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_consolidations_total",
				Help: "Total number of record consolidations",
			},
			[]string{"status"},
		),

		ConsolidationEntrySize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bfa_consolidation_entries",
				Help:    "Number of clinical entries per consolidation",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
			},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bfa_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ComponentHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bfa_component_health",
				Help: "Component health status (1 healthy, 0 unhealthy)",
			},
			[]string{"component"},
		),
	}
}

// RecordRegistration records one registration outcome
func (m *PrometheusMetrics) RecordRegistration(status string, duration time.Duration) {
	m.RegistrationsTotal.WithLabelValues(status).Inc()
	m.RegistrationDuration.Observe(duration.Seconds())
}

// RecordVerification records one verification outcome
func (m *PrometheusMetrics) RecordVerification(result string, duration time.Duration) {
	m.VerificationsTotal.WithLabelValues(result).Inc()
	m.VerificationDuration.Observe(duration.Seconds())
}

// RecordHTTPRequest records one HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateComponentHealth sets the health gauge for a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}
