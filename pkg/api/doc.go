/*
Package api serves the read-only HTTP surface of a running Mend
instance.

Routes:

	GET /healthz          component health, 503 when any is unhealthy
	GET /metrics          Prometheus text exposition
	GET /dashboard        live activity snapshot (hourly buckets, workers)
	GET /report?period=   trailing-window performance report
	GET /rollback-points  retained rollback points, newest first

All domain responses are JSON. The server never mutates state; fixes
and rollbacks go through the orchestrator and CLI.
*/
package api
