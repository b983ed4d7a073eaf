/*
Package metrics provides performance tracking and Prometheus exposition for Mend.

The package has two halves. The Prometheus half defines and registers all Mend
metrics at package init and exposes them through Handler() for scraping. The
Recorder half keeps an in-memory view of task lifecycles and per-worker
performance, and renders that view as trailing-window reports and a live
dashboard for the HTTP API.

# Architecture

	┌──────────────────── METRICS SYSTEM ─────────────────────┐
	│                                                          │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  │  - Exposed via promhttp at /metrics         │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                    │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Recorder                       │          │
	│  │                                             │          │
	│  │  Start/End: task attempt lifecycle          │          │
	│  │  Per-worker: counts, durations, rates       │          │
	│  │  Event stream: bounded, time-stamped        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                    │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │             Derived Views                   │          │
	│  │                                             │          │
	│  │  Performance: min/max/avg, p50/p95/p99      │          │
	│  │  Report: trailing window task summary       │          │
	│  │  Dashboard: 24h hourly activity buckets     │          │
	│  └────────────────────────────────────────────┘          │
	└──────────────────────────────────────────────────────────┘

# Metrics Catalog

mend_active_tasks:
  - Type: Gauge
  - Description: Fix tasks currently in flight

mend_tasks_resolved_total{strategy, outcome}:
  - Type: Counter
  - Description: Resolved fix tasks by strategy and outcome

mend_fix_attempts_total{worker, outcome}:
  - Type: Counter
  - Description: Fix attempts by worker and outcome

mend_fix_duration_seconds{worker}:
  - Type: Histogram
  - Description: Fix attempt latency by worker

mend_cache_hits_total / mend_cache_misses_total:
  - Type: Counter
  - Description: Fix cache lookup outcomes

mend_cache_entries:
  - Type: Gauge
  - Description: Entries currently held in the fix cache

mend_rollback_points:
  - Type: Gauge
  - Description: Rollback points currently retained

mend_rollbacks_total{outcome}:
  - Type: Counter
  - Description: Rollback restores by outcome

mend_errors_observed_total{kind}:
  - Type: Counter
  - Description: Errors handed to the orchestrator by kind

# Usage

Recording a task attempt:

	rec := metrics.NewRecorder()
	rec.Start(task.ID, worker.ID())
	// ... run the fix attempt ...
	rec.End(task.ID, worker.ID(), result.Success, string(task.Error.Kind))

Timing an operation into a histogram:

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDurationVec(metrics.FixDurationSeconds, worker.ID())

Percentiles use linear interpolation between the two nearest ranks, so for
any non-empty sample set p50 <= p95 <= p99 holds.

Worker status labels on the dashboard are derived from all-time success
rate: "idle" with no recorded attempts, then "excellent" (>= 0.95),
"good" (>= 0.80), "fair" (>= 0.60), and "poor" below that.

# Integration Points

This package integrates with:

  - pkg/orchestrator: Records attempt lifecycles and cache hit counters
  - pkg/fixcache: Entry count mirrored by the Collector
  - pkg/snapshot: Rollback point count mirrored by the Collector
  - pkg/api: Serves /metrics, /dashboard, /report and /healthz
  - Prometheus: Scrapes the /metrics endpoint
*/
package metrics
