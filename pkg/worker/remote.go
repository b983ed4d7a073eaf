package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mendhq/mend/pkg/log"
	"github.com/mendhq/mend/pkg/types"
)

// maxResponseBytes bounds how much of a fixer response is read.
const maxResponseBytes = 4 << 20

// HTTPWorker sends fix requests to a remote fixer service. Timeouts
// and cancellation come from the caller's context.
type HTTPWorker struct {
	id     string
	url    string
	client *http.Client
}

// NewHTTPWorker creates an HTTP worker posting to the given URL.
func NewHTTPWorker(id, url string) *HTTPWorker {
	return &HTTPWorker{
		id:     id,
		url:    url,
		client: &http.Client{},
	}
}

// ID returns the worker identity used in results and metrics.
func (w *HTTPWorker) ID() string {
	return w.id
}

// Attempt posts one error context to the remote fixer.
func (w *HTTPWorker) Attempt(ctx context.Context, ec types.ErrorContext, affectedFiles []string) (*types.FixResult, error) {
	body, err := json.Marshal(attemptRequest{Error: ec, AffectedFiles: affectedFiles})
	if err != nil {
		return nil, fmt.Errorf("failed to encode fix request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build fix request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.WithWorker(w.id).Debug().
		Str("url", w.url).
		Str("kind", string(ec.Kind)).
		Msg("Posting fix request")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach fixer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fixer returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read fixer response: %w", err)
	}

	var attempt attemptResponse
	if err := json.Unmarshal(data, &attempt); err != nil {
		return nil, fmt.Errorf("failed to decode fixer response: %w", err)
	}
	return attempt.toResult(w.id), nil
}
