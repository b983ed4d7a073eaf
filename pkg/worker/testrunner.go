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

// CommandRunner validates fixes by running a test command. The command
// receives the affected files as arguments and must print a JSON
// summary {"passed": N, "failed": N, "total": N} on stdout. A non-zero
// exit with parseable output is treated as a completed run with
// failures, not as a runner error.
type CommandRunner struct {
	command []string
}

// NewCommandRunner creates a test runner for the given argv.
func NewCommandRunner(command []string) (*CommandRunner, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("test runner: empty command")
	}
	return &CommandRunner{command: command}, nil
}

// Run executes the test command for the affected files.
func (r *CommandRunner) Run(ctx context.Context, affectedFiles []string) (*types.TestResult, error) {
	args := append(append([]string{}, r.command[1:]...), affectedFiles...)
	cmd := exec.CommandContext(ctx, r.command[0], args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var result types.TestResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		if runErr != nil {
			return nil, fmt.Errorf("failed to run tests: %w (stderr: %s)", runErr, stderr.String())
		}
		return nil, fmt.Errorf("failed to decode test output: %w", err)
	}

	if runErr != nil {
		log.WithComponent("testrunner").Debug().
			Err(runErr).
			Int("failed", result.Failed).
			Msg("Test command exited non-zero")
	}
	return &result, nil
}
