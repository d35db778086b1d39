package coordinator

import (
	"sync"

	"github.com/overseer-dev/overseer/internal/events"
	"github.com/overseer-dev/overseer/internal/history"
)

// StatusSnapshot is the reconciled view served by GET /status.
type StatusSnapshot struct {
	Running          bool   `json:"running"`
	SecurityMode     string `json:"security_mode"`
	CurrentPlanID    string `json:"current_plan_id"`
	TaskStatus       Status `json:"task_status"`
	PendingApprovals int    `json:"pending_approvals"`
	EmergencyStopped bool   `json:"emergency_stopped"`
}

type taskEntry struct {
	status Status
	seq    uint64
}

// ReadModel is the reconciled read-side cache fed by two independent
// writers: the event-stream path and the periodic reconciler. Writes
// are last-writer-wins per task id, ordered by the task-local sequence
// number — never by wall clock.
type ReadModel struct {
	mu            sync.RWMutex
	tasks         map[string]taskEntry
	currentID     string
	securityMode  string
	pending       int
	stopped       bool
	recentHistory []history.ActionRecord
}

// NewReadModel creates an empty read model.
func NewReadModel() *ReadModel {
	return &ReadModel{tasks: make(map[string]taskEntry)}
}

// ApplyEvent is the event-path writer. Pushed events may arrive
// duplicated or out of order; stale sequence numbers lose.
func (m *ReadModel) ApplyEvent(e events.Event) {
	switch e.Type {
	case events.EventStatusChanged:
		p, ok := events.GetStatusChangedPayload(e)
		if !ok {
			return
		}
		m.applyTask(e.TaskID, Status(p.Status), e.Seq)
	case events.EventApprovalRequired:
		p, ok := events.GetApprovalRequiredPayload(e)
		if !ok {
			return
		}
		// Hint only; the reconciler overwrites with the authoritative
		// queue snapshot.
		m.mu.Lock()
		m.pending = p.Pending
		m.mu.Unlock()
	case events.EventEmergencyStop:
		p, ok := events.GetEmergencyStopPayload(e)
		if !ok {
			return
		}
		m.mu.Lock()
		m.stopped = p.Engaged
		m.pending = 0
		m.mu.Unlock()
	case events.EventEmergencyReset:
		m.mu.Lock()
		m.stopped = false
		m.mu.Unlock()
	}
}

// ApplyReconciled is the reconciler-path writer: an authoritative fetch
// of every cell at the given task sequence.
func (m *ReadModel) ApplyReconciled(task Task, haveTask bool, seq uint64, pending int, stopped bool, recent []history.ActionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if haveTask {
		m.currentID = task.ID
		m.securityMode = task.SecurityMode
		prev, ok := m.tasks[task.ID]
		switch {
		case !ok || seq >= prev.seq:
			m.tasks[task.ID] = taskEntry{status: task.Status, seq: seq}
		case task.Status.Terminal():
			// A terminal status wins even with a stale counter (the
			// bus may have released it already); the higher seq is
			// kept so a delayed duplicate event cannot overwrite the
			// terminal entry.
			m.tasks[task.ID] = taskEntry{status: task.Status, seq: prev.seq}
		}
	}
	m.pending = pending
	m.stopped = stopped
	m.recentHistory = recent
}

func (m *ReadModel) applyTask(taskID string, status Status, seq uint64) {
	if taskID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.tasks[taskID]
	if ok && seq < prev.seq {
		return
	}
	m.tasks[taskID] = taskEntry{status: status, seq: seq}
	m.currentID = taskID
}

// SetSecurityMode seeds the mode reported before the first task runs.
func (m *ReadModel) SetSecurityMode(mode string) {
	m.mu.Lock()
	m.securityMode = mode
	m.mu.Unlock()
}

// Snapshot returns the current reconciled view.
func (m *ReadModel) Snapshot() StatusSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := StatusIdle
	if entry, ok := m.tasks[m.currentID]; ok {
		status = entry.status
	}
	return StatusSnapshot{
		Running:          status == StatusRunning || status == StatusAwaitingApproval,
		SecurityMode:     m.securityMode,
		CurrentPlanID:    m.currentID,
		TaskStatus:       status,
		PendingApprovals: m.pending,
		EmergencyStopped: m.stopped,
	}
}

// RecentHistory returns the records cached by the last reconciler tick.
func (m *ReadModel) RecentHistory() []history.ActionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]history.ActionRecord, len(m.recentHistory))
	copy(out, m.recentHistory)
	return out
}
