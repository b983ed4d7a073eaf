package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mendhq/mend/pkg/fixcache"
	"github.com/mendhq/mend/pkg/log"
	"github.com/mendhq/mend/pkg/metrics"
	"github.com/mendhq/mend/pkg/snapshot"
	"github.com/mendhq/mend/pkg/types"
)

// Worker produces fix attempts for error contexts. Implementations must
// honor context cancellation.
type Worker interface {
	ID() string
	Attempt(ctx context.Context, ec types.ErrorContext, affectedFiles []string) (*types.FixResult, error)
}

// TestRunner validates a fix by running the project's tests. Optional;
// without one, test validation is skipped and treated as passed.
type TestRunner interface {
	Run(ctx context.Context, affectedFiles []string) (*types.TestResult, error)
}

// Options tunes orchestration behavior. All values come from
// configuration.
type Options struct {
	Strategy            types.Strategy
	Mode                types.ExecutionMode
	MaxRetries          int
	RetryInterval       time.Duration
	LocalTimeout        time.Duration
	RemoteTimeout       time.Duration
	ConfidenceThreshold float64
}

// Deps are the orchestrator's collaborators. Local and Remote may each
// be nil when the execution mode excludes them; Cache, Snapshots,
// Recorder and Tests are all optional.
type Deps struct {
	Local     Worker
	Remote    Worker
	Cache     *fixcache.Cache
	Snapshots *snapshot.Store
	Recorder  *metrics.Recorder
	Tests     TestRunner
}

// Orchestrator routes fix tasks between workers, consults the fix cache
// first, and records every resolution. One instance owns its cache and
// snapshot store exclusively.
type Orchestrator struct {
	opts       Options
	local      Worker
	remote     Worker
	cache      *fixcache.Cache
	snapshots  *snapshot.Store
	recorder   *metrics.Recorder
	tests      TestRunner
	complexity *complexityTracker
}

// New creates an orchestrator from options and collaborators.
func New(opts Options, deps Deps) *Orchestrator {
	return &Orchestrator{
		opts:       opts,
		local:      deps.Local,
		remote:     deps.Remote,
		cache:      deps.Cache,
		snapshots:  deps.Snapshots,
		recorder:   deps.Recorder,
		tests:      deps.Tests,
		complexity: newComplexityTracker(),
	}
}

// Fix resolves one task. It always returns a result within bounded time
// and never returns an error; failures are encoded in the result.
func (o *Orchestrator) Fix(ctx context.Context, task types.FixTask) *types.FixResult {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}

	timer := metrics.NewTimer()
	logger := log.WithTaskID(task.ID)
	logger.Info().
		Str("kind", string(task.Error.Kind)).
		Str("strategy", string(o.opts.Strategy)).
		Msg("Starting fix")

	pointID := o.captureSnapshot(task)

	if result := o.tryCache(ctx, task); result != nil {
		result.Duration = timer.Duration()
		o.finish(task, result)
		return result
	}

	maxRetries := task.MaxRetries
	if maxRetries <= 0 {
		maxRetries = o.opts.MaxRetries
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var result *types.FixResult
	for attempt := 1; attempt <= maxRetries; attempt++ {
		strategy := o.resolveStrategy(task)
		result = o.runStrategy(ctx, strategy, task)
		result.Strategy = strategy

		o.complexity.Record(task.Error.Kind, result)

		if result.Success {
			break
		}

		logger.Warn().
			Int("attempt", attempt).
			Int("max_retries", maxRetries).
			Str("error", result.ErrorMessage).
			Msg("Fix attempt failed")

		if attempt < maxRetries {
			select {
			case <-time.After(o.opts.RetryInterval):
			case <-ctx.Done():
				attempt = maxRetries
			}
		}
	}

	if result == nil {
		result = &types.FixResult{TaskID: task.ID, Strategy: o.opts.Strategy, Worker: types.WorkerNone}
	}
	if !result.Success {
		result.ErrorMessage = "max retries exceeded"
		o.maybeRollback(task, result, pointID)
	}

	result.Duration = timer.Duration()
	o.finish(task, result)
	return result
}

// captureSnapshot records the affected files into a rollback point
// before any fix touches them. Capture failure is logged, not fatal.
func (o *Orchestrator) captureSnapshot(task types.FixTask) string {
	if o.snapshots == nil || len(task.AffectedFiles) == 0 {
		return ""
	}

	pointID, err := o.snapshots.Capture(task.AffectedFiles, "before fix "+task.ID, []string{"pre-fix"})
	if err != nil {
		log.WithTaskID(task.ID).Warn().Err(err).Msg("Failed to capture rollback point")
		return ""
	}
	return pointID
}

// tryCache resolves the task from the fix cache when a hit meets the
// confidence threshold and survives test validation. Returns nil when
// the task must go to a worker.
func (o *Orchestrator) tryCache(ctx context.Context, task types.FixTask) *types.FixResult {
	if o.cache == nil {
		return nil
	}

	entry, ok := o.cache.Get(task.Error)
	if !ok || entry.SuccessRate < o.opts.ConfidenceThreshold {
		metrics.CacheMissesTotal.Inc()
		return nil
	}
	metrics.CacheHitsTotal.Inc()

	log.WithTaskID(task.ID).Info().
		Str("fingerprint", entry.Fingerprint).
		Float64("success_rate", entry.SuccessRate).
		Msg("Applying cached fix")

	result := &types.FixResult{
		Success:    true,
		TaskID:     task.ID,
		Strategy:   "cache",
		Worker:     types.WorkerCache,
		Confidence: entry.SuccessRate,
		CacheHit:   true,
		Modifications: []types.Modification{{
			Type:        "cached",
			Content:     entry.Payload,
			Description: entry.Description,
		}},
	}

	o.runTests(ctx, task, result)
	o.cache.RecordOutcome(entry.Fingerprint, result.Success)
	if o.recorder != nil {
		errorKind := ""
		if !result.Success {
			errorKind = string(task.Error.Kind)
		}
		o.recorder.RecordFixAttempt(types.WorkerCache, result.Success, result.Duration, errorKind)
	}

	if !result.Success {
		log.WithTaskID(task.ID).Warn().
			Str("fingerprint", entry.Fingerprint).
			Msg("Cached fix failed validation, dispatching to workers")
		return nil
	}
	return result
}

// resolveStrategy picks the routing strategy for one attempt, applying
// adaptive complexity mapping and execution mode restrictions.
func (o *Orchestrator) resolveStrategy(task types.FixTask) types.Strategy {
	strategy := o.opts.Strategy
	if strategy == types.StrategyAdaptive {
		complexity := o.complexity.Estimate(task)
		strategy = subStrategy(complexity)
		log.WithTaskID(task.ID).Debug().
			Float64("complexity", complexity).
			Str("strategy", string(strategy)).
			Msg("Adaptive strategy selected")
	}

	switch o.opts.Mode {
	case types.ModeLocal:
		return types.StrategyLocalOnly
	case types.ModeRemote:
		return types.StrategyRemoteOnly
	}

	// Degrade gracefully when a worker is not configured.
	if o.remote == nil {
		return types.StrategyLocalOnly
	}
	if o.local == nil {
		return types.StrategyRemoteOnly
	}
	return strategy
}

func (o *Orchestrator) runStrategy(ctx context.Context, strategy types.Strategy, task types.FixTask) *types.FixResult {
	switch strategy {
	case types.StrategyLocalOnly:
		return o.executeWorker(ctx, o.local, o.opts.LocalTimeout, task)
	case types.StrategyRemoteOnly:
		return o.executeWorker(ctx, o.remote, o.opts.RemoteTimeout, task)
	case types.StrategyLocalFirst:
		return o.failover(ctx, task, o.local, o.opts.LocalTimeout, o.remote, o.opts.RemoteTimeout)
	case types.StrategyRemoteFirst:
		return o.failover(ctx, task, o.remote, o.opts.RemoteTimeout, o.local, o.opts.LocalTimeout)
	case types.StrategyParallel:
		return o.race(ctx, task)
	default:
		return &types.FixResult{
			TaskID:       task.ID,
			Worker:       types.WorkerNone,
			ErrorMessage: fmt.Sprintf("unknown strategy %q", strategy),
		}
	}
}

// failover tries the primary worker and falls back to the secondary
// when the primary fails or reports low confidence.
func (o *Orchestrator) failover(ctx context.Context, task types.FixTask, primary Worker, primaryTimeout time.Duration, secondary Worker, secondaryTimeout time.Duration) *types.FixResult {
	first := o.executeWorker(ctx, primary, primaryTimeout, task)
	if o.qualifies(first) {
		return first
	}

	log.WithTaskID(task.ID).Info().
		Str("from", primary.ID()).
		Str("to", secondary.ID()).
		Msg("Falling back to secondary worker")

	second := o.executeWorker(ctx, secondary, secondaryTimeout, task)
	if o.qualifies(second) {
		return second
	}
	return better(first, second)
}

// race runs both workers concurrently. The first result that succeeds
// with sufficient confidence wins and the other attempt is cancelled;
// otherwise both are awaited and the higher confidence wins, ties
// favoring the first to complete.
func (o *Orchestrator) race(ctx context.Context, task types.FixTask) *types.FixResult {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan *types.FixResult, 2)
	go func() {
		results <- o.executeWorker(raceCtx, o.local, o.opts.LocalTimeout, task)
	}()
	go func() {
		results <- o.executeWorker(raceCtx, o.remote, o.opts.RemoteTimeout, task)
	}()

	first := <-results
	if o.qualifies(first) {
		cancel()
		return first
	}

	second := <-results
	if o.qualifies(second) {
		return second
	}
	return better(first, second)
}

// executeWorker runs one attempt under its own timeout. Worker panics
// and errors are converted into failed results; they never escape.
func (o *Orchestrator) executeWorker(ctx context.Context, w Worker, timeout time.Duration, task types.FixTask) *types.FixResult {
	if w == nil {
		return &types.FixResult{
			TaskID:       task.ID,
			Worker:       types.WorkerNone,
			ErrorMessage: "no worker configured",
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if o.recorder != nil {
		o.recorder.Start(task.ID, w.ID())
	}

	type outcome struct {
		result *types.FixResult
		err    error
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("worker panic: %v", r)}
			}
		}()
		result, err := w.Attempt(attemptCtx, task.Error, task.AffectedFiles)
		done <- outcome{result: result, err: err}
	}()

	var result *types.FixResult
	select {
	case out := <-done:
		switch {
		case out.err != nil:
			result = &types.FixResult{ErrorMessage: out.err.Error()}
		case out.result == nil:
			result = &types.FixResult{ErrorMessage: "worker returned no result"}
		default:
			result = out.result
		}
	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			result = &types.FixResult{ErrorMessage: fmt.Sprintf("%s fix timeout", w.ID())}
		} else {
			result = &types.FixResult{ErrorMessage: fmt.Sprintf("%s fix cancelled", w.ID())}
		}
	}

	result.TaskID = task.ID
	result.Worker = w.ID()
	result.Duration = time.Since(start)

	if result.Success {
		o.runTests(ctx, task, result)
	}

	if o.recorder != nil {
		errorKind := ""
		if !result.Success {
			errorKind = string(task.Error.Kind)
		}
		o.recorder.End(task.ID, w.ID(), result.Success, errorKind)
	}
	return result
}

// runTests validates an apparently successful fix. A regression forces
// the result into failure regardless of what the worker reported.
func (o *Orchestrator) runTests(ctx context.Context, task types.FixTask, result *types.FixResult) {
	if o.tests == nil {
		return
	}

	tests, err := o.tests.Run(ctx, task.AffectedFiles)
	if err != nil {
		log.WithTaskID(task.ID).Warn().Err(err).Msg("Test execution failed")
		return
	}

	result.TestResult = tests
	if !tests.OK() {
		result.Success = false
		result.ErrorMessage = "tests failed after fix"
	}
}

// maybeRollback restores the pre-fix rollback point when the failure
// carries a test regression that the rollback policy flags.
func (o *Orchestrator) maybeRollback(task types.FixTask, result *types.FixResult, pointID string) {
	if o.snapshots == nil || pointID == "" || result.TestResult == nil {
		return
	}
	if !o.snapshots.ShouldAutoRollback(task.Error, result.TestResult) {
		return
	}

	restore := o.snapshots.Restore(pointID, false)
	outcome := "failure"
	if restore.Success {
		outcome = "success"
	}
	metrics.RollbacksTotal.WithLabelValues(outcome).Inc()

	log.WithTaskID(task.ID).Warn().
		Str("point_id", pointID).
		Bool("restored", restore.Success).
		Msg("Rolled back after failed fix")
}

// finish records the resolution into the cache, metrics and logs.
func (o *Orchestrator) finish(task types.FixTask, result *types.FixResult) {
	if result.Success && !result.CacheHit && o.cache != nil && len(result.Modifications) > 0 {
		payload, err := json.Marshal(result.Modifications)
		if err == nil {
			description := fmt.Sprintf("Fixed by %s worker", result.Worker)
			o.cache.Put(task.Error, string(payload), description, result.Confidence, 0)
		}
	}

	outcome := "failure"
	if result.Success {
		outcome = "success"
	}
	metrics.TasksResolvedTotal.WithLabelValues(string(result.Strategy), outcome).Inc()

	log.WithTaskID(task.ID).Info().
		Bool("success", result.Success).
		Str("worker", result.Worker).
		Str("strategy", string(result.Strategy)).
		Dur("duration", result.Duration).
		Bool("cache_hit", result.CacheHit).
		Msg("Fix resolved")
}

// qualifies reports whether a result both succeeded and meets the
// confidence threshold.
func (o *Orchestrator) qualifies(result *types.FixResult) bool {
	return result.Success && result.Confidence >= o.opts.ConfidenceThreshold
}

// better picks between two non-qualifying results: success beats
// failure, then higher confidence, ties favoring the first.
func better(first, second *types.FixResult) *types.FixResult {
	if first.Success != second.Success {
		if first.Success {
			return first
		}
		return second
	}
	if second.Confidence > first.Confidence {
		return second
	}
	return first
}
