package worker

import (
	"github.com/mendhq/mend/pkg/types"
)

// attemptRequest is the JSON document handed to a fixer, on stdin for
// command workers and as the request body for HTTP workers.
type attemptRequest struct {
	Error         types.ErrorContext `json:"error_context"`
	AffectedFiles []string           `json:"affected_files"`
}

// attemptResponse is the JSON document a fixer produces.
type attemptResponse struct {
	Success       bool                 `json:"success"`
	Confidence    float64              `json:"confidence"`
	Modifications []types.Modification `json:"modifications,omitempty"`
	Error         string               `json:"error,omitempty"`
}

func (r *attemptResponse) toResult(workerID string) *types.FixResult {
	return &types.FixResult{
		Success:       r.Success,
		Worker:        workerID,
		Confidence:    r.Confidence,
		Modifications: r.Modifications,
		ErrorMessage:  r.Error,
	}
}
