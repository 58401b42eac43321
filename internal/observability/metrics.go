// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Saga outcomes.
const (
	OutcomeSuccess        = "success"
	OutcomeRejected       = "rejected"
	OutcomeRefunded       = "refunded"
	OutcomeFailed         = "failed"
	OutcomeReconciliation = "reconciliation"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Saga metrics
	SagaRuns               *prometheus.CounterVec
	SagaDuration           *prometheus.HistogramVec
	RefundFailures         prometheus.Counter
	ReconciliationRequired *prometheus.CounterVec

	// External call metrics
	SwapCalls           *prometheus.CounterVec
	SwapLatency         prometheus.Histogram
	ConfirmationLatency *prometheus.HistogramVec

	// Analytics metrics
	AnalyticsWriteErrors prometheus.Counter

	// Reconciliation metrics
	PendingReconciliation *prometheus.GaugeVec
	LastSweep             prometheus.Gauge

	// HTTP metrics
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance registered on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "memeetf"
	}
	factory := promauto.With(reg)

	return &Metrics{
		SagaRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "runs_total",
			Help:      "Total number of saga runs by operation and outcome",
		}, []string{"operation", "outcome"}),
		SagaDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "duration_seconds",
			Help:      "Saga execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"operation"}),
		RefundFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "refund_failures_total",
			Help:      "Total number of refunds that exhausted their retries",
		}),
		ReconciliationRequired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "reconciliation_required_total",
			Help:      "Total number of chain/ledger inconsistencies by operation",
		}, []string{"operation"}),

		SwapCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "calls_total",
			Help:      "Total number of swap executor calls by status",
		}, []string{"status"}),
		SwapLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "latency_seconds",
			Help:      "Swap executor call latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 45},
		}),
		ConfirmationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "confirmation_latency_seconds",
			Help:      "Time from submission to confirmation by operation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		AnalyticsWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "write_errors_total",
			Help:      "Total number of failed swap-fill analytics writes",
		}),

		PendingReconciliation: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconciliation",
			Name:      "pending_entries",
			Help:      "Ledger entries awaiting reconciliation by kind",
		}, []string{"kind"}),
		LastSweep: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_reconciliation_sweep_timestamp",
			Help:      "Unix timestamp of last reconciliation sweep",
		}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordSaga records a saga outcome and its duration.
func (m *Metrics) RecordSaga(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SagaRuns.WithLabelValues(operation, outcome).Inc()
	m.SagaDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordRefundFailure increments the refund failure counter.
func (m *Metrics) RecordRefundFailure() {
	if m == nil {
		return
	}
	m.RefundFailures.Inc()
}

// RecordReconciliation increments the reconciliation counter for operation.
func (m *Metrics) RecordReconciliation(operation string) {
	if m == nil {
		return
	}
	m.ReconciliationRequired.WithLabelValues(operation).Inc()
}

// RecordSwap records a swap call.
func (m *Metrics) RecordSwap(err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SwapCalls.WithLabelValues(status).Inc()
	m.SwapLatency.Observe(d.Seconds())
}

// RecordConfirmation records confirmation latency.
func (m *Metrics) RecordConfirmation(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.ConfirmationLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordAnalyticsError increments the analytics write error counter.
func (m *Metrics) RecordAnalyticsError() {
	if m == nil {
		return
	}
	m.AnalyticsWriteErrors.Inc()
}

// SetPendingReconciliation updates the pending gauge for every kind in counts.
func (m *Metrics) SetPendingReconciliation(counts map[string]int) {
	if m == nil {
		return
	}
	m.PendingReconciliation.Reset()
	for kind, n := range counts {
		m.PendingReconciliation.WithLabelValues(kind).Set(float64(n))
	}
	m.LastSweep.SetToCurrentTime()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
