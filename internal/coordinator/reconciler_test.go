package coordinator

import (
	"testing"
	"time"

	"github.com/overseer-dev/overseer/internal/events"
	"github.com/overseer-dev/overseer/internal/history"
)

func TestReconciler_TickRebuildsReadModel(t *testing.T) {
	exec := &scriptedExecutor{batches: [][]ProposedAction{
		{{Type: "click", Description: "click"}},
	}}
	c, _ := newTestCoordinator(t, exec, riskByType(map[string]RiskLevel{"click": RiskHigh}))
	r, err := NewReconciler(c, "@every 1h") // driven manually
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}

	taskID, _ := c.Submit("do a click")
	waitUntil(t, "pending approval", func() bool { return c.Queue.PendingCount() == 1 })

	r.Tick()
	snap := c.Model.Snapshot()
	if !snap.Running {
		t.Error("snapshot should report running while awaiting approval")
	}
	if snap.CurrentPlanID != taskID {
		t.Errorf("current_plan_id = %s, want %s", snap.CurrentPlanID, taskID)
	}
	if snap.PendingApprovals != 1 {
		t.Errorf("pending_approvals = %d, want 1", snap.PendingApprovals)
	}
	if snap.EmergencyStopped {
		t.Error("emergency_stopped should be false")
	}

	c.EmergencyStop()
	r.Tick()
	snap = c.Model.Snapshot()
	if snap.Running {
		t.Error("snapshot should not report running after stop")
	}
	if !snap.EmergencyStopped {
		t.Error("emergency_stopped should be true")
	}
	if snap.PendingApprovals != 0 {
		t.Errorf("pending_approvals = %d, want 0 after reconciliation", snap.PendingApprovals)
	}
}

func TestReconciler_SweepsExpired(t *testing.T) {
	bus := events.NewBus(64)
	t.Cleanup(bus.Close)
	exec := &scriptedExecutor{}
	c, err := New(Options{
		Bus:         bus,
		Classifier:  riskByType(nil),
		Executor:    exec,
		ApprovalTTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	t.Cleanup(c.Close)

	r, err := NewReconciler(c, "@every 1h")
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}

	taskID, err := c.Submit("quick task")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitUntil(t, "task completion", func() bool { return taskStatus(c) == StatusCompleted })

	past := time.Now().Add(-time.Second)
	expired := ApprovalRequest{
		ID:        "req_expired",
		TaskID:    taskID,
		Action:    ProposedAction{Type: "click", Description: "stale"},
		Risk:      RiskHigh,
		CreatedAt: time.Now().Add(-time.Minute),
		ExpiresAt: &past,
	}
	if err := c.Queue.Enqueue(expired); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	r.Tick()
	if c.Queue.PendingCount() != 0 {
		t.Errorf("expired request not swept, pending = %d", c.Queue.PendingCount())
	}
}

func TestReconciler_BadSpec(t *testing.T) {
	exec := &scriptedExecutor{}
	c, _ := newTestCoordinator(t, exec, riskByType(nil))
	if _, err := NewReconciler(c, "not a schedule"); err == nil {
		t.Error("expected error for invalid cron spec")
	}
}

func TestReadModel_LastWriterWinsBySeq(t *testing.T) {
	m := NewReadModel()

	m.ApplyEvent(events.Event{
		TaskID: "task_1", Type: events.EventStatusChanged, Seq: 2,
		Payload: map[string]any{"status": "awaiting_approval"},
	})
	// Stale event arriving late must lose.
	m.ApplyEvent(events.Event{
		TaskID: "task_1", Type: events.EventStatusChanged, Seq: 1,
		Payload: map[string]any{"status": "running"},
	})

	snap := m.Snapshot()
	if snap.TaskStatus != StatusAwaitingApproval {
		t.Errorf("status = %s, want awaiting_approval (seq 2 wins)", snap.TaskStatus)
	}

	// Duplicate delivery of the winning event is tolerated.
	m.ApplyEvent(events.Event{
		TaskID: "task_1", Type: events.EventStatusChanged, Seq: 2,
		Payload: map[string]any{"status": "awaiting_approval"},
	})
	if got := m.Snapshot().TaskStatus; got != StatusAwaitingApproval {
		t.Errorf("status after duplicate = %s", got)
	}
}

func TestReadModel_ReconcilerOverridesHints(t *testing.T) {
	m := NewReadModel()

	m.ApplyEvent(events.Event{
		TaskID: "task_1", Type: events.EventApprovalRequired, Seq: 1,
		Payload: map[string]any{"request_id": "req_1", "pending": float64(5)},
	})
	if m.Snapshot().PendingApprovals != 5 {
		t.Fatalf("hint not applied")
	}

	m.ApplyReconciled(Task{ID: "task_1", Status: StatusRunning, SecurityMode: "strict"}, true, 3, 1, false,
		[]history.ActionRecord{{TaskID: "task_1", ActionType: "click", Status: history.StatusSuccess}})

	snap := m.Snapshot()
	if snap.PendingApprovals != 1 {
		t.Errorf("pending = %d, want authoritative 1", snap.PendingApprovals)
	}
	if snap.SecurityMode != "strict" {
		t.Errorf("security_mode = %q", snap.SecurityMode)
	}
	if len(m.RecentHistory()) != 1 {
		t.Error("recent history not cached")
	}
}
