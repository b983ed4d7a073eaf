package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mendhq/mend/pkg/types"
)

func TestHeuristicComplexity(t *testing.T) {
	tests := []struct {
		name string
		task types.FixTask
		want float64
	}{
		{
			name: "baseline unknown error",
			task: types.FixTask{
				Error:         types.ErrorContext{Kind: types.ErrorKindUnknown, Message: "boom"},
				AffectedFiles: []string{"a.py", "b.py"},
			},
			want: 0.5,
		},
		{
			name: "simple kind single file",
			task: types.FixTask{
				Error:         types.ErrorContext{Kind: types.ErrorKindImport, Message: "no module named requests"},
				AffectedFiles: []string{"a.py"},
			},
			want: 0.2,
		},
		{
			name: "complex kind many files",
			task: types.FixTask{
				Error:         types.ErrorContext{Kind: types.ErrorKindType, Message: "unsupported operand"},
				AffectedFiles: []string{"a", "b", "c", "d", "e", "f"},
			},
			want: 0.9,
		},
		{
			name: "long message adds complexity",
			task: types.FixTask{
				Error:         types.ErrorContext{Kind: types.ErrorKindUnknown, Message: strings.Repeat("x", 201)},
				AffectedFiles: []string{"a.py", "b.py"},
			},
			want: 0.6,
		},
		{
			name: "clamped at one",
			task: types.FixTask{
				Error:         types.ErrorContext{Kind: types.ErrorKindAttribute, Message: strings.Repeat("x", 201)},
				AffectedFiles: []string{"a", "b", "c", "d", "e", "f"},
			},
			want: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, heuristicComplexity(tt.task), 1e-9)
		})
	}
}

func TestEstimateBlendsHistory(t *testing.T) {
	tracker := newComplexityTracker()
	task := types.FixTask{
		Error:         types.ErrorContext{Kind: types.ErrorKindImport, Message: "no module named requests"},
		AffectedFiles: []string{"a.py"},
	}

	// No history: heuristic stands alone.
	assert.InDelta(t, 0.2, tracker.Estimate(task), 1e-9)

	// Two failures push the history mean to 0.9.
	tracker.Record(types.ErrorKindImport, &types.FixResult{Success: false})
	tracker.Record(types.ErrorKindImport, &types.FixResult{Success: false})

	assert.InDelta(t, (0.2+0.9)/2, tracker.Estimate(task), 1e-9)
}

func TestRecordDerivedScores(t *testing.T) {
	tracker := newComplexityTracker()

	tracker.Record(types.ErrorKindType, &types.FixResult{Success: true, Worker: types.WorkerLocal})
	tracker.Record(types.ErrorKindType, &types.FixResult{Success: true, Worker: types.WorkerRemote})
	tracker.Record(types.ErrorKindType, &types.FixResult{Success: false, Worker: types.WorkerLocal})

	assert.Equal(t, []float64{0.3, 0.7, 0.9}, tracker.history[types.ErrorKindType])
}

func TestRecordIgnoresCacheWorker(t *testing.T) {
	tracker := newComplexityTracker()

	tracker.Record(types.ErrorKindType, &types.FixResult{Success: true, Worker: types.WorkerCache})

	assert.Empty(t, tracker.history[types.ErrorKindType])
}

func TestHistoryRingIsBounded(t *testing.T) {
	tracker := newComplexityTracker()

	for i := 0; i < 15; i++ {
		tracker.Record(types.ErrorKindName, &types.FixResult{Success: false})
	}

	assert.Len(t, tracker.history[types.ErrorKindName], complexityHistorySize)
}

func TestSubStrategyMapping(t *testing.T) {
	assert.Equal(t, types.StrategyLocalFirst, subStrategy(0.0))
	assert.Equal(t, types.StrategyLocalFirst, subStrategy(0.29))
	assert.Equal(t, types.StrategyParallel, subStrategy(0.3))
	assert.Equal(t, types.StrategyParallel, subStrategy(0.69))
	assert.Equal(t, types.StrategyRemoteFirst, subStrategy(0.7))
	assert.Equal(t, types.StrategyRemoteFirst, subStrategy(1.0))
}
