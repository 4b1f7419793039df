// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goalsync_sync_rows_total",
			Help: "Rows merged into the warehouse per source table",
		},
		[]string{"table"},
	)

	SyncTableResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goalsync_sync_table_results_total",
			Help: "Per-table sync outcomes by status (ok, idle, error)",
		},
		[]string{"table", "status"},
	)

	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goalsync_sync_run_duration_seconds",
			Help:    "Wall time of sync runs including retries",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 900},
		},
		[]string{"status"},
	)

	SyncRunRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "goalsync_sync_run_retries_total",
			Help: "Run-level retries caused by connection failures",
		},
	)

	SyncWatermarkLag = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "goalsync_sync_watermark_lag_seconds",
			Help: "Seconds between now and the committed watermark of each table",
		},
		[]string{"table"},
	)

	AnalyticsDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goalsync_analytics_duration_seconds",
			Help:    "Duration of warehouse metric computations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job", "status"},
	)

	AnalyticsUsersUpdated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goalsync_analytics_users_updated_total",
			Help: "Per-user metric rows written by each computation",
		},
		[]string{"job"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "goalsync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goalsync_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)
