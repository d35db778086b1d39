// Package executor provides the HTTP client for a remote agent executor
// service, the component that plans and performs computer-use actions.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/overseer-dev/overseer/internal/coordinator"
)

// Client talks to an executor service over HTTP. It satisfies
// coordinator.AgentExecutor.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the executor at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "executor_client"),
	}
}

type nextRequest struct {
	PlanID string `json:"plan_id"`
}

type nextResponse struct {
	Actions []coordinator.ProposedAction `json:"actions"`
}

type executeRequest struct {
	PlanID string                     `json:"plan_id"`
	Action coordinator.ProposedAction `json:"action"`
}

type executeResponse struct {
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type stopRequest struct {
	PlanID string `json:"plan_id"`
}

// NextActions asks the executor for its next batch of proposed actions.
func (c *Client) NextActions(ctx context.Context, taskID string) ([]coordinator.ProposedAction, error) {
	var resp nextResponse
	if err := c.post(ctx, "/next", nextRequest{PlanID: taskID}, &resp); err != nil {
		return nil, fmt.Errorf("next actions: %w", err)
	}
	return resp.Actions, nil
}

// Execute performs one action on the executor and returns its duration.
func (c *Client) Execute(ctx context.Context, taskID string, action coordinator.ProposedAction) (time.Duration, error) {
	var resp executeResponse
	if err := c.post(ctx, "/execute", executeRequest{PlanID: taskID, Action: action}, &resp); err != nil {
		return 0, fmt.Errorf("execute %s: %w", action.Type, err)
	}
	dur := time.Duration(resp.DurationMs) * time.Millisecond
	if resp.Error != "" {
		return dur, fmt.Errorf("execute %s: %s", action.Type, resp.Error)
	}
	return dur, nil
}

// Stop tells the executor to abandon in-flight work for the task. It runs
// the request in the background so callers never block on the network.
func (c *Client) Stop(taskID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.post(ctx, "/stop", stopRequest{PlanID: taskID}, nil); err != nil {
			c.logger.Warn("stop request failed", "plan_id", taskID, "error", err)
		}
	}()
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("executor returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
