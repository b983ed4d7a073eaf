/*
Package orchestrator is the decision engine that resolves fix tasks.

Every task moves through the same state machine: a cache check first,
then strategy dispatch against the local and remote workers, with a
bounded retry loop between attempts. Terminal states are always
resolved; a task never stays pending and Fix never returns an error.

	CacheCheck ──hit──────────────────────────► Resolved
	    │ miss
	    ▼
	StrategyDispatch ──► Attempting ──success──► Resolved(success)
	    ▲                    │ failure
	    │                    ▼
	    └──── Retrying ◄─────┘ (fixed interval, max retries)
	                         │ exhausted
	                         ▼
	                  Resolved(failure)

Strategies route attempts between the two workers: local-only,
remote-only, local-first, remote-first, a parallel race that cancels
the losing attempt, and adaptive, which estimates error complexity
from a heuristic blended with recent outcomes and picks one of the
others. Each attempt runs under its own timeout and is independently
cancellable; worker errors and panics are converted into failed
results at the attempt boundary.

Successful fixes are written back into the fix cache so equivalent
errors resolve with near-zero latency, and every resolution is passed
to the metrics recorder. When a fix degrades the test suite and the
rollback policy flags the failure, the pre-fix rollback point is
restored.
*/
package orchestrator
