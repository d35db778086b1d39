package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	clientws "github.com/overseer-dev/overseer/clients/ws"
	"github.com/overseer-dev/overseer/internal/coordinator"
	"github.com/overseer-dev/overseer/internal/events"
	"github.com/overseer-dev/overseer/internal/gateway"
	"github.com/overseer-dev/overseer/internal/gateway/ws"
	"github.com/overseer-dev/overseer/internal/history"
)

// stepExecutor proposes a fixed sequence of single-action batches.
type stepExecutor struct {
	mu    sync.Mutex
	steps []coordinator.ProposedAction
	next  int
}

func (e *stepExecutor) NextActions(ctx context.Context, taskID string) ([]coordinator.ProposedAction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.next >= len(e.steps) {
		return nil, nil
	}
	action := e.steps[e.next]
	e.next++
	return []coordinator.ProposedAction{action}, nil
}

func (e *stepExecutor) Execute(ctx context.Context, taskID string, a coordinator.ProposedAction) (time.Duration, error) {
	return time.Millisecond, nil
}

func (e *stepExecutor) Stop(taskID string) {}

func startStack(t *testing.T, exec coordinator.AgentExecutor) (*httptest.Server, *coordinator.Coordinator) {
	t.Helper()
	bus := events.NewBus(256)
	t.Cleanup(bus.Close)

	coord, err := coordinator.New(coordinator.Options{
		Bus:   bus,
		Store: history.NewMemStore(),
		Classifier: coordinator.ClassifierFunc(func(a coordinator.ProposedAction) coordinator.RiskLevel {
			if a.Type == "screenshot" {
				return coordinator.RiskLow
			}
			return coordinator.RiskHigh
		}),
		Executor:     exec,
		SecurityMode: "strict",
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	t.Cleanup(coord.Close)

	srv := httptest.NewServer(gateway.NewServer(coord, "127.0.0.1", 0).Handler())
	t.Cleanup(srv.Close)
	return srv, coord
}

func postJSON(t *testing.T, url, body string) map[string]any {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return out
}

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return out
}

func lookupTask(coord *coordinator.Coordinator, taskID string) (coordinator.Task, bool) {
	if task, ok := coord.Lifecycle.Current(); ok && task.ID == taskID {
		return task, true
	}
	for _, task := range coord.Lifecycle.Recent() {
		if task.ID == taskID {
			return task, true
		}
	}
	return coordinator.Task{}, false
}

func waitForStatus(t *testing.T, coord *coordinator.Coordinator, taskID string, want coordinator.Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if task, ok := lookupTask(coord, taskID); ok && task.Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	task, _ := lookupTask(coord, taskID)
	t.Fatalf("task never reached %s, still %s", want, task.Status)
}

// TestApprovalFlowEndToEnd drives a full task over HTTP: submit, observe the
// pending approval, approve it, and watch the task complete with its event
// stream intact.
func TestApprovalFlowEndToEnd(t *testing.T) {
	exec := &stepExecutor{steps: []coordinator.ProposedAction{
		{Type: "screenshot", Description: "look at the screen"},
		{Type: "click", Description: "click submit"},
	}}
	srv, coord := startStack(t, exec)

	submitted := postJSON(t, srv.URL+"/task", `{"task":"fill out the form"}`)
	planID, _ := submitted["plan_id"].(string)
	if planID == "" {
		t.Fatalf("submit response: %v", submitted)
	}

	// Attach the websocket watcher before resolving anything.
	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1)
	watcher, err := clientws.Dial(context.Background(), wsURL, planID)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	defer watcher.Close()

	// The screenshot dispatches unattended; the click must queue.
	var requestID string
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp := getJSON(t, srv.URL+"/approvals")
		if pending, _ := resp["pending"].([]any); len(pending) == 1 {
			entry := pending[0].(map[string]any)
			requestID = entry["id"].(string)
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if requestID == "" {
		t.Fatal("approval request never appeared")
	}

	postJSON(t, srv.URL+"/approve/"+requestID, "{}")
	waitForStatus(t, coord, planID, coordinator.StatusCompleted)

	// Collect streamed frames until the watcher sees completion.
	sawCompleted := false
	frameDeadline := time.After(5 * time.Second)
	frames := make(chan ws.Frame, 64)
	go func() {
		watcher.Watch(func(f ws.Frame) error {
			frames <- f
			return nil
		})
		close(frames)
	}()
	var lastSeq uint64
	for !sawCompleted {
		select {
		case f, ok := <-frames:
			if !ok {
				t.Fatal("stream ended before completion event")
			}
			if f.Type == ws.FrameTypeEvent {
				if f.Seq < lastSeq {
					t.Errorf("sequence went backwards: %d after %d", f.Seq, lastSeq)
				}
				lastSeq = f.Seq
				if f.Event == string(events.EventTaskCompleted) {
					sawCompleted = true
				}
			}
		case <-frameDeadline:
			t.Fatal("never streamed a completion event")
		}
	}

	// Both actions land in history, newest first.
	hist := getJSON(t, srv.URL+"/history?limit=10")
	entries, _ := hist["history"].([]any)
	if len(entries) < 2 {
		t.Fatalf("history = %v", hist)
	}
}

// TestEmergencyStopEndToEnd verifies the stop endpoint aborts an awaiting
// task and clears its queue.
func TestEmergencyStopEndToEnd(t *testing.T) {
	exec := &stepExecutor{steps: []coordinator.ProposedAction{
		{Type: "click", Description: "click the red button"},
	}}
	srv, coord := startStack(t, exec)

	submitted := postJSON(t, srv.URL+"/task", `{"task":"dangerous errand"}`)
	planID, _ := submitted["plan_id"].(string)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && coord.Queue.PendingCount() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if coord.Queue.PendingCount() != 1 {
		t.Fatal("approval never queued")
	}

	postJSON(t, srv.URL+"/emergency-stop", "{}")
	waitForStatus(t, coord, planID, coordinator.StatusCancelled)

	if coord.Queue.PendingCount() != 0 {
		t.Error("queue should be empty after emergency stop")
	}

	// New submissions bounce until reset.
	bounced := postJSON(t, srv.URL+"/task", `{"task":"try again"}`)
	if bounced["success"] != false {
		t.Errorf("submit while stopped: %v", bounced)
	}

	postJSON(t, srv.URL+"/reset-emergency", "{}")
	accepted := postJSON(t, srv.URL+"/task", `{"task":"after reset"}`)
	if accepted["success"] != true {
		t.Errorf("submit after reset: %v", accepted)
	}
}
