package orchestrator

import (
	"sync"

	"github.com/mendhq/mend/pkg/types"
)

// complexityHistorySize caps the per-kind outcome ring buffer.
const complexityHistorySize = 10

// Derived complexity scores recorded after each resolution.
const (
	complexityLocalSuccess  = 0.3
	complexityRemoteSuccess = 0.7
	complexityFailure       = 0.9
)

var simpleKinds = map[types.ErrorKind]struct{}{
	types.ErrorKindSyntax: {},
	types.ErrorKindImport: {},
	types.ErrorKindName:   {},
}

var complexKinds = map[types.ErrorKind]struct{}{
	types.ErrorKindAttribute: {},
	types.ErrorKindType:      {},
}

// complexityTracker learns how hard each error kind is to fix, blending
// a static heuristic with the most recent resolution outcomes.
type complexityTracker struct {
	mu      sync.Mutex
	history map[types.ErrorKind][]float64
}

func newComplexityTracker() *complexityTracker {
	return &complexityTracker{
		history: make(map[types.ErrorKind][]float64),
	}
}

// Estimate returns a complexity score in [0,1] for the task. Without
// history for the error kind the heuristic stands alone; with history
// the two are averaged with equal weight.
func (t *complexityTracker) Estimate(task types.FixTask) float64 {
	heuristic := heuristicComplexity(task)

	t.mu.Lock()
	samples := t.history[task.Error.Kind]
	t.mu.Unlock()

	if len(samples) == 0 {
		return heuristic
	}

	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))

	return clamp((heuristic + mean) / 2)
}

// Record appends the derived complexity of a resolution to the error
// kind's ring buffer.
func (t *complexityTracker) Record(kind types.ErrorKind, result *types.FixResult) {
	score := complexityFailure
	if result.Success {
		switch result.Worker {
		case types.WorkerLocal:
			score = complexityLocalSuccess
		case types.WorkerRemote:
			score = complexityRemoteSuccess
		default:
			return
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	samples := append(t.history[kind], score)
	if len(samples) > complexityHistorySize {
		samples = samples[len(samples)-complexityHistorySize:]
	}
	t.history[kind] = samples
}

func heuristicComplexity(task types.FixTask) float64 {
	score := 0.5

	if _, ok := simpleKinds[task.Error.Kind]; ok {
		score -= 0.2
	}
	if _, ok := complexKinds[task.Error.Kind]; ok {
		score += 0.2
	}

	switch files := len(task.AffectedFiles); {
	case files > 5:
		score += 0.2
	case files == 1:
		score -= 0.1
	}

	if len(task.Error.Message) > 200 {
		score += 0.1
	}

	return clamp(score)
}

// subStrategy maps a complexity estimate to a concrete routing strategy.
func subStrategy(complexity float64) types.Strategy {
	switch {
	case complexity < 0.3:
		return types.StrategyLocalFirst
	case complexity < 0.7:
		return types.StrategyParallel
	default:
		return types.StrategyRemoteFirst
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
