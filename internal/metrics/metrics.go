// Package metrics provides Prometheus metrics for the sync service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRunsTotal tracks reconciliation runs by operation and outcome
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalogsync",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of reconciliation runs by operation and status",
		},
		[]string{"operation", "status"},
	)

	// SyncRunDuration tracks reconciliation run duration in seconds
	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "catalogsync",
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of reconciliation runs in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"operation"},
	)

	// SyncRecordsTotal tracks mirror rows touched by runs
	SyncRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalogsync",
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Mirror rows affected by reconciliation runs",
		},
		[]string{"operation", "outcome"},
	)

	// ChunkRetriesTotal tracks batch chunk retries
	ChunkRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "catalogsync",
			Subsystem: "batch",
			Name:      "chunk_retries_total",
			Help:      "Total number of chunk write retries",
		},
	)

	// ChunkFailuresTotal tracks chunks that exhausted their retries
	ChunkFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "catalogsync",
			Subsystem: "batch",
			Name:      "chunk_failures_total",
			Help:      "Total number of chunks that failed after all attempts",
		},
	)

	// RemoteRequestsTotal tracks outbound catalog requests
	RemoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalogsync",
			Subsystem: "woocommerce",
			Name:      "requests_total",
			Help:      "Total number of WooCommerce API requests by status code",
		},
		[]string{"status_code"},
	)

	// RemoteRequestDuration tracks outbound catalog request duration
	RemoteRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "catalogsync",
			Subsystem: "woocommerce",
			Name:      "request_duration_seconds",
			Help:      "Duration of WooCommerce API requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// SyncRunsInFlight tracks runs currently executing
	SyncRunsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "catalogsync",
			Subsystem: "sync",
			Name:      "runs_in_flight",
			Help:      "Number of reconciliation runs currently executing",
		},
	)
)

// RecordRun records the outcome of one reconciliation run.
func RecordRun(operation string, success bool, seconds float64) {
	status := "success"
	if !success {
		status = "failed"
	}
	SyncRunsTotal.WithLabelValues(operation, status).Inc()
	SyncRunDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordRows adds n affected rows for an operation/outcome pair.
func RecordRows(operation, outcome string, n int) {
	if n <= 0 {
		return
	}
	SyncRecordsTotal.WithLabelValues(operation, outcome).Add(float64(n))
}
