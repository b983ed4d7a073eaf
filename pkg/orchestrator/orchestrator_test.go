package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mendhq/mend/pkg/fixcache"
	"github.com/mendhq/mend/pkg/snapshot"
	"github.com/mendhq/mend/pkg/types"
)

// stubWorker returns scripted results, one per call; the last result
// repeats once the script runs out.
type stubWorker struct {
	id      string
	delay   time.Duration
	results []*types.FixResult
	err     error
	onCall  func()

	mu    sync.Mutex
	calls int
}

func (w *stubWorker) ID() string { return w.id }

func (w *stubWorker) Attempt(ctx context.Context, ec types.ErrorContext, files []string) (*types.FixResult, error) {
	w.mu.Lock()
	idx := w.calls
	w.calls++
	w.mu.Unlock()

	if w.onCall != nil {
		w.onCall()
	}

	if w.delay > 0 {
		select {
		case <-time.After(w.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if w.err != nil {
		return nil, w.err
	}
	if len(w.results) == 0 {
		return &types.FixResult{Success: true, Confidence: 0.9}, nil
	}
	if idx >= len(w.results) {
		idx = len(w.results) - 1
	}
	result := *w.results[idx]
	return &result, nil
}

func (w *stubWorker) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

// stubTestRunner returns a fixed result, or scripted results when set,
// the last one repeating once the script runs out.
type stubTestRunner struct {
	result  *types.TestResult
	results []*types.TestResult
	err     error

	mu    sync.Mutex
	calls int
}

func (r *stubTestRunner) Run(ctx context.Context, files []string) (*types.TestResult, error) {
	r.mu.Lock()
	idx := r.calls
	r.calls++
	r.mu.Unlock()

	if len(r.results) > 0 {
		if idx >= len(r.results) {
			idx = len(r.results) - 1
		}
		return r.results[idx], r.err
	}
	return r.result, r.err
}

func testOpts() Options {
	return Options{
		Strategy:            types.StrategyLocalOnly,
		Mode:                types.ModeHybrid,
		MaxRetries:          3,
		RetryInterval:       time.Millisecond,
		LocalTimeout:        time.Second,
		RemoteTimeout:       time.Second,
		ConfidenceThreshold: 0.7,
	}
}

func testCacheOptions() fixcache.Options {
	return fixcache.Options{
		SimilarityThreshold:  0.85,
		EMAAlpha:             0.3,
		MaxEntries:           100,
		DefaultTTL:           time.Hour,
		PruneMinApplications: 5,
		PruneMaxSuccessRate:  0.3,
	}
}

func importTask(id string) types.FixTask {
	return types.FixTask{
		ID: id,
		Error: types.ErrorContext{
			Kind:    types.ErrorKindImport,
			Message: "cannot import name 'connect' from 'db'",
		},
		AffectedFiles: []string{},
	}
}

func TestLocalOnlySuccess(t *testing.T) {
	local := &stubWorker{id: types.WorkerLocal}
	o := New(testOpts(), Deps{Local: local})

	result := o.Fix(context.Background(), importTask("t1"))

	require.True(t, result.Success)
	assert.Equal(t, types.WorkerLocal, result.Worker)
	assert.Equal(t, types.StrategyLocalOnly, result.Strategy)
	assert.Equal(t, "t1", result.TaskID)
	assert.Equal(t, 1, local.callCount())
}

func TestRetryCountIsExact(t *testing.T) {
	local := &stubWorker{
		id:      types.WorkerLocal,
		results: []*types.FixResult{{Success: false, ErrorMessage: "no fix found"}},
	}
	o := New(testOpts(), Deps{Local: local})

	result := o.Fix(context.Background(), importTask("t1"))

	require.False(t, result.Success)
	assert.Equal(t, "max retries exceeded", result.ErrorMessage)
	assert.Equal(t, 3, local.callCount())
}

func TestRetrySucceedsMidway(t *testing.T) {
	local := &stubWorker{
		id: types.WorkerLocal,
		results: []*types.FixResult{
			{Success: false, ErrorMessage: "no fix found"},
			{Success: true, Confidence: 0.9},
		},
	}
	o := New(testOpts(), Deps{Local: local})

	result := o.Fix(context.Background(), importTask("t1"))

	require.True(t, result.Success)
	assert.Equal(t, 2, local.callCount())
}

func TestLocalFirstFallsBackOnFailure(t *testing.T) {
	local := &stubWorker{
		id:      types.WorkerLocal,
		results: []*types.FixResult{{Success: false, ErrorMessage: "no fix found"}},
	}
	remote := &stubWorker{id: types.WorkerRemote}

	opts := testOpts()
	opts.Strategy = types.StrategyLocalFirst
	o := New(opts, Deps{Local: local, Remote: remote})

	result := o.Fix(context.Background(), importTask("t1"))

	require.True(t, result.Success)
	assert.Equal(t, types.WorkerRemote, result.Worker)
}

func TestLocalFirstFallsBackOnLowConfidence(t *testing.T) {
	local := &stubWorker{
		id:      types.WorkerLocal,
		results: []*types.FixResult{{Success: true, Confidence: 0.2}},
	}
	remote := &stubWorker{
		id:      types.WorkerRemote,
		results: []*types.FixResult{{Success: true, Confidence: 0.9}},
	}

	opts := testOpts()
	opts.Strategy = types.StrategyLocalFirst
	o := New(opts, Deps{Local: local, Remote: remote})

	result := o.Fix(context.Background(), importTask("t1"))

	require.True(t, result.Success)
	assert.Equal(t, types.WorkerRemote, result.Worker)
}

func TestFallbackKeepsBetterOfTwoWeakResults(t *testing.T) {
	local := &stubWorker{
		id:      types.WorkerLocal,
		results: []*types.FixResult{{Success: true, Confidence: 0.4}},
	}
	remote := &stubWorker{
		id:      types.WorkerRemote,
		results: []*types.FixResult{{Success: true, Confidence: 0.3}},
	}

	opts := testOpts()
	opts.Strategy = types.StrategyLocalFirst
	o := New(opts, Deps{Local: local, Remote: remote})

	result := o.Fix(context.Background(), importTask("t1"))

	require.True(t, result.Success)
	assert.Equal(t, types.WorkerLocal, result.Worker)
	assert.InDelta(t, 0.4, result.Confidence, 1e-9)
}

func TestParallelFirstQualifyingWins(t *testing.T) {
	local := &stubWorker{
		id:      types.WorkerLocal,
		delay:   5 * time.Millisecond,
		results: []*types.FixResult{{Success: true, Confidence: 0.9}},
	}
	remote := &stubWorker{
		id:      types.WorkerRemote,
		delay:   300 * time.Millisecond,
		results: []*types.FixResult{{Success: true, Confidence: 0.9}},
	}

	opts := testOpts()
	opts.Strategy = types.StrategyParallel
	o := New(opts, Deps{Local: local, Remote: remote})

	result := o.Fix(context.Background(), importTask("t1"))

	require.True(t, result.Success)
	assert.Equal(t, types.WorkerLocal, result.Worker)
	assert.Less(t, result.Duration, 300*time.Millisecond)
}

func TestParallelPicksHigherConfidenceWhenNeitherQualifies(t *testing.T) {
	local := &stubWorker{
		id:      types.WorkerLocal,
		results: []*types.FixResult{{Success: true, Confidence: 0.3}},
	}
	remote := &stubWorker{
		id:      types.WorkerRemote,
		delay:   10 * time.Millisecond,
		results: []*types.FixResult{{Success: true, Confidence: 0.5}},
	}

	opts := testOpts()
	opts.Strategy = types.StrategyParallel
	o := New(opts, Deps{Local: local, Remote: remote})

	result := o.Fix(context.Background(), importTask("t1"))

	require.True(t, result.Success)
	assert.Equal(t, types.WorkerRemote, result.Worker)
}

func TestWorkerTimeout(t *testing.T) {
	// onCall blocks without watching the context, so the deadline branch
	// is the one that fires.
	local := &stubWorker{
		id:     types.WorkerLocal,
		onCall: func() { time.Sleep(200 * time.Millisecond) },
	}

	opts := testOpts()
	opts.LocalTimeout = 20 * time.Millisecond
	o := New(opts, Deps{Local: local})

	result := o.executeWorker(context.Background(), local, opts.LocalTimeout, importTask("t1"))

	require.False(t, result.Success)
	assert.Equal(t, "local fix timeout", result.ErrorMessage)
}

func TestCancelledAttemptIsNotATimeout(t *testing.T) {
	local := &stubWorker{
		id:     types.WorkerLocal,
		onCall: func() { time.Sleep(200 * time.Millisecond) },
	}
	o := New(testOpts(), Deps{Local: local})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := o.executeWorker(ctx, local, time.Second, importTask("t1"))

	require.False(t, result.Success)
	assert.Equal(t, "local fix cancelled", result.ErrorMessage)
}

func TestWorkerPanicIsContained(t *testing.T) {
	local := &stubWorker{
		id:     types.WorkerLocal,
		onCall: func() { panic("boom") },
	}
	o := New(testOpts(), Deps{Local: local})

	result := o.executeWorker(context.Background(), local, time.Second, importTask("t1"))

	require.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "worker panic")
}

func TestWorkerErrorBecomesFailedResult(t *testing.T) {
	local := &stubWorker{
		id:  types.WorkerLocal,
		err: errors.New("connection refused"),
	}
	o := New(testOpts(), Deps{Local: local})

	result := o.executeWorker(context.Background(), local, time.Second, importTask("t1"))

	require.False(t, result.Success)
	assert.Equal(t, "connection refused", result.ErrorMessage)
}

func TestRegressionForcesFailure(t *testing.T) {
	local := &stubWorker{id: types.WorkerLocal}
	runner := &stubTestRunner{result: &types.TestResult{Passed: 1, Failed: 2, Total: 3}}

	opts := testOpts()
	opts.MaxRetries = 1
	o := New(opts, Deps{Local: local, Tests: runner})

	result := o.Fix(context.Background(), importTask("t1"))

	require.False(t, result.Success)
	require.NotNil(t, result.TestResult)
	assert.Equal(t, 2, result.TestResult.Failed)
}

func TestPassingTestsKeepSuccess(t *testing.T) {
	local := &stubWorker{id: types.WorkerLocal}
	runner := &stubTestRunner{result: &types.TestResult{Passed: 3, Total: 3}}

	o := New(testOpts(), Deps{Local: local, Tests: runner})

	result := o.Fix(context.Background(), importTask("t1"))

	require.True(t, result.Success)
	require.NotNil(t, result.TestResult)
	assert.Equal(t, 3, result.TestResult.Passed)
}

func TestCacheShortCircuit(t *testing.T) {
	cache := fixcache.New(testCacheOptions())
	task := importTask("t1")

	fp := cache.Put(task.Error, "payload", "Fixed by local worker", 0, 0)
	for i := 0; i < 4; i++ {
		cache.RecordOutcome(fp, true)
	}

	local := &stubWorker{id: types.WorkerLocal}
	o := New(testOpts(), Deps{Local: local, Cache: cache})

	result := o.Fix(context.Background(), task)

	require.True(t, result.Success)
	assert.True(t, result.CacheHit)
	assert.Equal(t, types.WorkerCache, result.Worker)
	assert.Equal(t, 0, local.callCount())
	require.Len(t, result.Modifications, 1)
	assert.Equal(t, "cached", result.Modifications[0].Type)
}

func TestLowConfidenceCacheEntryIsIgnored(t *testing.T) {
	cache := fixcache.New(testCacheOptions())
	task := importTask("t1")

	// One recorded success leaves the rate well below the threshold.
	fp := cache.Put(task.Error, "payload", "Fixed by local worker", 0, 0)
	cache.RecordOutcome(fp, true)

	local := &stubWorker{id: types.WorkerLocal}
	o := New(testOpts(), Deps{Local: local, Cache: cache})

	result := o.Fix(context.Background(), task)

	require.True(t, result.Success)
	assert.False(t, result.CacheHit)
	assert.Equal(t, 1, local.callCount())
}

func TestSuccessfulFixIsCached(t *testing.T) {
	cache := fixcache.New(testCacheOptions())
	local := &stubWorker{
		id: types.WorkerLocal,
		results: []*types.FixResult{{
			Success:    true,
			Confidence: 0.9,
			Modifications: []types.Modification{
				{Type: "edit", Path: "app.py", Content: "import db"},
			},
		}},
	}
	o := New(testOpts(), Deps{Local: local, Cache: cache})

	result := o.Fix(context.Background(), importTask("t1"))

	require.True(t, result.Success)
	assert.Equal(t, 1, cache.Len())

	entry, ok := cache.Get(importTask("t2").Error)
	require.True(t, ok)
	assert.Equal(t, "Fixed by local worker", entry.Description)
	assert.InDelta(t, 0.9, entry.SuccessRate, 1e-9)
}

func TestSecondIdenticalTaskServedFromCache(t *testing.T) {
	cache := fixcache.New(testCacheOptions())
	local := &stubWorker{
		id: types.WorkerLocal,
		results: []*types.FixResult{{
			Success:    true,
			Confidence: 0.8,
			Modifications: []types.Modification{
				{Type: "edit", Path: "app.py", Content: "import db"},
			},
		}},
	}
	o := New(testOpts(), Deps{Local: local, Cache: cache})

	first := o.Fix(context.Background(), importTask("t1"))
	require.True(t, first.Success)
	assert.False(t, first.CacheHit)

	second := o.Fix(context.Background(), importTask("t2"))
	require.True(t, second.Success)
	assert.True(t, second.CacheHit)
	assert.Equal(t, types.WorkerCache, second.Worker)
	assert.Equal(t, 1, local.callCount())
}

func TestFailedCachedFixFallsThroughToWorkers(t *testing.T) {
	cache := fixcache.New(testCacheOptions())
	task := importTask("t1")
	fp := cache.Put(task.Error, "payload", "Fixed by remote worker", 0.9, 0)

	local := &stubWorker{id: types.WorkerLocal}
	runner := &stubTestRunner{results: []*types.TestResult{
		{Passed: 1, Failed: 2, Total: 3},
		{Passed: 3, Total: 3},
	}}
	o := New(testOpts(), Deps{Local: local, Cache: cache, Tests: runner})

	result := o.Fix(context.Background(), task)

	require.True(t, result.Success)
	assert.False(t, result.CacheHit)
	assert.Equal(t, types.WorkerLocal, result.Worker)
	assert.Equal(t, 1, local.callCount())

	// The failed application lowered the entry's moving average.
	entry, ok := cache.Get(task.Error)
	require.True(t, ok)
	assert.Less(t, entry.SuccessRate, 0.9)
	assert.Equal(t, fp, entry.Fingerprint)
}

func TestModeLocalNeverTouchesRemote(t *testing.T) {
	local := &stubWorker{id: types.WorkerLocal}
	remote := &stubWorker{id: types.WorkerRemote}

	opts := testOpts()
	opts.Strategy = types.StrategyRemoteFirst
	opts.Mode = types.ModeLocal
	o := New(opts, Deps{Local: local, Remote: remote})

	result := o.Fix(context.Background(), importTask("t1"))

	require.True(t, result.Success)
	assert.Equal(t, types.WorkerLocal, result.Worker)
	assert.Equal(t, 0, remote.callCount())
}

func TestMissingRemoteDegradesToLocalOnly(t *testing.T) {
	local := &stubWorker{id: types.WorkerLocal}

	opts := testOpts()
	opts.Strategy = types.StrategyParallel
	o := New(opts, Deps{Local: local})

	result := o.Fix(context.Background(), importTask("t1"))

	require.True(t, result.Success)
	assert.Equal(t, types.StrategyLocalOnly, result.Strategy)
}

func TestAdaptiveSimpleErrorGoesLocalFirst(t *testing.T) {
	local := &stubWorker{id: types.WorkerLocal}
	remote := &stubWorker{id: types.WorkerRemote}

	opts := testOpts()
	opts.Strategy = types.StrategyAdaptive
	o := New(opts, Deps{Local: local, Remote: remote})

	task := importTask("t1")
	task.AffectedFiles = []string{"app.py"}
	result := o.Fix(context.Background(), task)

	require.True(t, result.Success)
	assert.Equal(t, types.StrategyLocalFirst, result.Strategy)
	assert.Equal(t, types.WorkerLocal, result.Worker)
}

func TestAdaptiveComplexErrorGoesRemoteFirst(t *testing.T) {
	local := &stubWorker{id: types.WorkerLocal}
	remote := &stubWorker{id: types.WorkerRemote}

	opts := testOpts()
	opts.Strategy = types.StrategyAdaptive
	o := New(opts, Deps{Local: local, Remote: remote})

	task := types.FixTask{
		ID: "t1",
		Error: types.ErrorContext{
			Kind:    types.ErrorKindAttribute,
			Message: "'NoneType' object has no attribute 'commit'",
		},
		AffectedFiles: []string{"a.py", "b.py", "c.py", "d.py", "e.py", "f.py"},
	}
	result := o.Fix(context.Background(), task)

	require.True(t, result.Success)
	assert.Equal(t, types.StrategyRemoteFirst, result.Strategy)
	assert.Equal(t, types.WorkerRemote, result.Worker)
}

func TestGeneratedTaskIDWhenMissing(t *testing.T) {
	local := &stubWorker{id: types.WorkerLocal}
	o := New(testOpts(), Deps{Local: local})

	task := importTask("")
	result := o.Fix(context.Background(), task)

	require.True(t, result.Success)
	assert.NotEmpty(t, result.TaskID)
}

func TestAutoRollbackRestoresFiles(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "app.py")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0600))

	store, err := snapshot.Open(filepath.Join(dir, "data"), snapshot.Options{
		MaxRollbackPoints: 10,
		MaxHistory:        10,
		CriticalKinds:     []types.ErrorKind{types.ErrorKindImport},
		FailureThreshold:  0.5,
	})
	require.NoError(t, err)
	defer store.Close()

	// The worker "fixes" the file by making it worse, then the test
	// runner reports a regression.
	local := &stubWorker{
		id: types.WorkerLocal,
		onCall: func() {
			_ = os.WriteFile(target, []byte("worse"), 0600)
		},
	}
	runner := &stubTestRunner{result: &types.TestResult{Passed: 0, Failed: 3, Total: 3}}

	opts := testOpts()
	opts.MaxRetries = 1
	o := New(opts, Deps{Local: local, Snapshots: store, Tests: runner})

	task := importTask("t1")
	task.AffectedFiles = []string{target}
	result := o.Fix(context.Background(), task)

	require.False(t, result.Success)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "original", string(content))
}
