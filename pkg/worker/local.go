package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/mendhq/mend/pkg/log"
	"github.com/mendhq/mend/pkg/types"
)

// CommandWorker runs a local fixer process. The error context and
// affected files are passed as JSON on stdin; the attempt result is
// read as JSON from stdout. The process is killed when the context is
// cancelled.
type CommandWorker struct {
	id      string
	command []string
}

// NewCommandWorker creates a command worker running the given argv.
func NewCommandWorker(id string, command []string) (*CommandWorker, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("command worker %s: empty command", id)
	}
	return &CommandWorker{id: id, command: command}, nil
}

// ID returns the worker identity used in results and metrics.
func (w *CommandWorker) ID() string {
	return w.id
}

// Attempt runs the fixer process for one error context.
func (w *CommandWorker) Attempt(ctx context.Context, ec types.ErrorContext, affectedFiles []string) (*types.FixResult, error) {
	body, err := json.Marshal(attemptRequest{Error: ec, AffectedFiles: affectedFiles})
	if err != nil {
		return nil, fmt.Errorf("failed to encode fix request: %w", err)
	}

	cmd := exec.CommandContext(ctx, w.command[0], w.command[1:]...)
	cmd.Stdin = bytes.NewReader(body)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.WithWorker(w.id).Debug().
		Str("command", w.command[0]).
		Str("kind", string(ec.Kind)).
		Msg("Running fix command")

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to run fix command: %w (stderr: %s)", err, stderr.String())
	}

	var resp attemptResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode fix output: %w", err)
	}
	return resp.toResult(w.id), nil
}
