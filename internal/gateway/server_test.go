package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/overseer-dev/overseer/internal/coordinator"
	"github.com/overseer-dev/overseer/internal/events"
	"github.com/overseer-dev/overseer/internal/history"
)

// gatedExecutor proposes one risky click then finishes.
type gatedExecutor struct {
	proposed bool
}

func (e *gatedExecutor) NextActions(ctx context.Context, taskID string) ([]coordinator.ProposedAction, error) {
	if e.proposed {
		return nil, nil
	}
	e.proposed = true
	return []coordinator.ProposedAction{{
		Type:        "click",
		Description: "click the save button",
		Params:      map[string]any{"x": 120, "y": 340},
	}}, nil
}

func (e *gatedExecutor) Execute(ctx context.Context, taskID string, a coordinator.ProposedAction) (time.Duration, error) {
	return 5 * time.Millisecond, nil
}

func (e *gatedExecutor) Stop(taskID string) {}

func newTestServer(t *testing.T) (*Server, *coordinator.Coordinator, *coordinator.Reconciler) {
	t.Helper()
	bus := events.NewBus(256)
	t.Cleanup(bus.Close)

	coord, err := coordinator.New(coordinator.Options{
		Bus:   bus,
		Store: history.NewMemStore(),
		Classifier: coordinator.ClassifierFunc(func(a coordinator.ProposedAction) coordinator.RiskLevel {
			if a.Type == "click" {
				return coordinator.RiskHigh
			}
			return coordinator.RiskLow
		}),
		Executor:     &gatedExecutor{},
		SecurityMode: "strict",
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	t.Cleanup(coord.Close)

	rec, err := coordinator.NewReconciler(coord, "@every 1h") // ticked manually
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}

	return NewServer(coord, "127.0.0.1", 0), coord, rec
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var decoded map[string]any
	if rr.Body.Len() > 0 {
		if err := json.NewDecoder(rr.Body).Decode(&decoded); err != nil {
			t.Fatalf("%s %s: decode body: %v", method, path, err)
		}
	}
	return rr, decoded
}

func waitPending(t *testing.T, coord *coordinator.Coordinator, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if coord.Queue.PendingCount() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d pending approvals", n)
}

func TestServer_SubmitConflict(t *testing.T) {
	srv, coord, _ := newTestServer(t)
	h := srv.Handler()

	rr, body := doJSON(t, h, http.MethodPost, "/task", `{"task":"save the document"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("submit: status %d: %v", rr.Code, body)
	}
	if planID, _ := body["plan_id"].(string); body["success"] != true || planID == "" {
		t.Errorf("unexpected submit body: %v", body)
	}

	waitPending(t, coord, 1)

	rr, body = doJSON(t, h, http.MethodPost, "/task", `{"task":"another"}`)
	if rr.Code != http.StatusConflict {
		t.Errorf("conflict submit: status %d, want 409", rr.Code)
	}
	if body["success"] != false {
		t.Errorf("conflict body: %v", body)
	}
}

func TestServer_SubmitBadBody(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rr, _ := doJSON(t, srv.Handler(), http.MethodPost, "/task", `{"nope":1}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rr.Code)
	}
}

func TestServer_ApprovalsAndResolve(t *testing.T) {
	srv, coord, _ := newTestServer(t)
	h := srv.Handler()

	_, body := doJSON(t, h, http.MethodPost, "/task", `{"task":"save it"}`)
	planID, _ := body["plan_id"].(string)
	waitPending(t, coord, 1)

	rr, body := doJSON(t, h, http.MethodGet, "/approvals", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("approvals: status %d", rr.Code)
	}
	pending, _ := body["pending"].([]any)
	if len(pending) != 1 {
		t.Fatalf("pending = %v", body)
	}
	entry := pending[0].(map[string]any)
	if entry["plan_id"] != planID {
		t.Errorf("plan_id = %v, want %s", entry["plan_id"], planID)
	}
	action := entry["action"].(map[string]any)
	if action["action_type"] != "click" || action["risk_level"] != "high" {
		t.Errorf("action = %v", action)
	}
	if action["x"] != float64(120) || action["y"] != float64(340) {
		t.Errorf("coordinates not surfaced: %v", action)
	}

	requestID := entry["id"].(string)
	rr, _ = doJSON(t, h, http.MethodPost, "/approve/"+requestID, "")
	if rr.Code != http.StatusOK {
		t.Errorf("approve: status %d", rr.Code)
	}

	// Single-use: replay gets 404 with a detail message.
	rr, body = doJSON(t, h, http.MethodPost, "/approve/"+requestID, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("approve replay: status %d, want 404", rr.Code)
	}
	if detail, _ := body["detail"].(string); detail == "" {
		t.Error("404 should carry a detail message")
	}
}

func TestServer_RejectAll(t *testing.T) {
	srv, coord, _ := newTestServer(t)
	h := srv.Handler()

	_, _ = doJSON(t, h, http.MethodPost, "/task", `{"task":"save it"}`)
	waitPending(t, coord, 1)

	rr, body := doJSON(t, h, http.MethodPost, "/reject-all", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("reject-all: status %d", rr.Code)
	}
	if body["resolved"] != float64(1) {
		t.Errorf("resolved = %v, want 1", body["resolved"])
	}
}

func TestServer_StatusAndEmergencyStop(t *testing.T) {
	srv, coord, rec := newTestServer(t)
	h := srv.Handler()

	_, _ = doJSON(t, h, http.MethodPost, "/task", `{"task":"save it"}`)
	waitPending(t, coord, 1)
	rec.Tick()

	rr, body := doJSON(t, h, http.MethodGet, "/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d", rr.Code)
	}
	if body["running"] != true || body["pending_approvals"] != float64(1) {
		t.Errorf("status body: %v", body)
	}
	if body["security_mode"] != "strict" {
		t.Errorf("security_mode = %v", body["security_mode"])
	}
	if body["emergency_stopped"] != false {
		t.Errorf("emergency_stopped = %v", body["emergency_stopped"])
	}

	rr, _ = doJSON(t, h, http.MethodPost, "/emergency-stop", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("emergency-stop: %d", rr.Code)
	}
	rec.Tick()

	_, body = doJSON(t, h, http.MethodGet, "/status", "")
	if body["emergency_stopped"] != true {
		t.Errorf("emergency_stopped = %v, want true", body["emergency_stopped"])
	}
	if body["pending_approvals"] != float64(0) {
		t.Errorf("pending_approvals = %v, want 0", body["pending_approvals"])
	}
	if body["running"] != false {
		t.Errorf("running = %v, want false", body["running"])
	}

	rr, _ = doJSON(t, h, http.MethodPost, "/reset-emergency", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("reset-emergency: %d", rr.Code)
	}
}

func TestServer_History(t *testing.T) {
	srv, coord, _ := newTestServer(t)
	h := srv.Handler()

	ctx := context.Background()
	_ = coord.History().Append(ctx, history.ActionRecord{
		TaskID: "task_1", ActionType: "click", Status: history.StatusApproved, Timestamp: time.Now(),
	})
	_ = coord.History().Append(ctx, history.ActionRecord{
		TaskID: "task_1", ActionType: "click", Status: history.StatusSuccess,
		Timestamp: time.Now(), Duration: 80 * time.Millisecond,
	})

	rr, body := doJSON(t, h, http.MethodGet, "/history?limit=1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("history: %d", rr.Code)
	}
	entries, _ := body["history"].([]any)
	if len(entries) != 1 {
		t.Fatalf("history = %v", body)
	}
	entry := entries[0].(map[string]any)
	if entry["status"] != "success" || entry["plan_id"] != "task_1" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["duration"]; !ok {
		t.Error("duration should be present on executed actions")
	}
}

func TestServer_Health(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rr, body := doJSON(t, srv.Handler(), http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health: %d %v", rr.Code, body)
	}
}
