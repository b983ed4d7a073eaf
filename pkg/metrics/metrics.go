package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task metrics
	ActiveTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mend_active_tasks",
			Help: "Number of fix tasks currently in flight",
		},
	)

	TasksResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mend_tasks_resolved_total",
			Help: "Total number of resolved fix tasks by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	// Fix attempt metrics
	FixAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mend_fix_attempts_total",
			Help: "Total number of fix attempts by worker and outcome",
		},
		[]string{"worker", "outcome"},
	)

	FixDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mend_fix_duration_seconds",
			Help:    "Fix attempt duration in seconds by worker",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"worker"},
	)

	// Cache metrics
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mend_cache_hits_total",
			Help: "Total number of fix cache hits, exact and similarity matches combined",
		},
	)

	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mend_cache_misses_total",
			Help: "Total number of fix cache misses",
		},
	)

	CacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mend_cache_entries",
			Help: "Number of entries currently held in the fix cache",
		},
	)

	// Rollback metrics
	RollbackPoints = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mend_rollback_points",
			Help: "Number of rollback points currently retained",
		},
	)

	RollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mend_rollbacks_total",
			Help: "Total number of rollback restores by outcome",
		},
		[]string{"outcome"},
	)

	// Error metrics
	ErrorsObservedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mend_errors_observed_total",
			Help: "Total number of errors handed to the orchestrator by kind",
		},
		[]string{"kind"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		ActiveTasks,
		TasksResolvedTotal,
		FixAttemptsTotal,
		FixDurationSeconds,
		CacheHitsTotal,
		CacheMissesTotal,
		CacheEntries,
		RollbackPoints,
		RollbacksTotal,
		ErrorsObservedTotal,
	)
}

// Handler returns the HTTP handler for the metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
