package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/overseer-dev/overseer/internal/events"
	"github.com/overseer-dev/overseer/internal/history"
)

// recentTasksCap bounds the ring of retained terminal tasks.
const recentTasksCap = 16

// sharedState is the single mutual-exclusion domain guarding the current
// task slot and the emergency-stop flag. Both cells are only ever read
// or written under mu, so a concurrently arriving Engage is observed by
// the dispatch path before it permits the next action, and /status can
// never report contradictory flags.
type sharedState struct {
	mu        sync.Mutex
	current   *Task
	stopped   bool
	stoppedAt time.Time
}

// Lifecycle owns the task state machine:
//
//	idle -> running -> awaiting_approval -> running -> completed
//
// with failed on unrecoverable executor error and cancelled on emergency
// stop. At most one task is non-terminal at a time.
type Lifecycle struct {
	state  *sharedState
	store  history.Store
	bus    *events.Bus
	recent []*Task
}

func newLifecycle(state *sharedState, store history.Store, bus *events.Bus) *Lifecycle {
	return &Lifecycle{state: state, store: store, bus: bus}
}

// Submit creates and starts a new task. It fails with ErrAlreadyRunning
// while another task is non-terminal and with ErrStopped while the
// emergency stop is engaged.
func (l *Lifecycle) Submit(description, securityMode string) (Task, error) {
	l.state.mu.Lock()
	if l.state.stopped {
		l.state.mu.Unlock()
		return Task{}, ErrStopped
	}
	if cur := l.state.current; cur != nil && !cur.Status.Terminal() {
		l.state.mu.Unlock()
		return Task{}, ErrAlreadyRunning
	}

	task := &Task{
		ID:           GenerateTaskID(),
		Description:  description,
		Status:       StatusRunning,
		SecurityMode: securityMode,
		CreatedAt:    time.Now(),
	}
	l.state.current = task
	snapshot := *task
	l.state.mu.Unlock()

	slog.Info("task submitted", "task", snapshot.ID, "mode", securityMode)
	l.publishStatus(snapshot.ID, StatusRunning, StatusIdle, "")
	return snapshot, nil
}

// Current returns a snapshot of the current task (which may be
// terminal), or false when none has been submitted yet.
func (l *Lifecycle) Current() (Task, bool) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	if l.state.current == nil {
		return Task{}, false
	}
	return *l.state.current, true
}

// MarkAwaitingApproval moves the task from running to awaiting_approval.
// It is an idempotent no-op when the task is already awaiting approval,
// which tolerates duplicate event delivery.
func (l *Lifecycle) MarkAwaitingApproval(taskID string) error {
	return l.transition(taskID, StatusAwaitingApproval, StatusRunning, "")
}

// Resume moves the task from awaiting_approval back to running.
// Idempotent no-op when already running.
func (l *Lifecycle) Resume(taskID string) error {
	return l.transition(taskID, StatusRunning, StatusAwaitingApproval, "")
}

func (l *Lifecycle) transition(taskID string, target, from Status, reason string) error {
	l.state.mu.Lock()
	cur := l.state.current
	if cur == nil || cur.ID != taskID {
		l.state.mu.Unlock()
		return ErrUnknownTask
	}
	if cur.Status == target {
		l.state.mu.Unlock()
		return nil
	}
	if cur.Status.Terminal() {
		l.state.mu.Unlock()
		return ErrTerminal
	}
	if cur.Status != from {
		l.state.mu.Unlock()
		return ErrUnknownTask
	}
	prev := cur.Status
	cur.Status = target
	l.state.mu.Unlock()

	l.publishStatus(taskID, target, prev, reason)
	return nil
}

// Complete moves the task to completed and writes the terminal outcome
// record to the history store before returning.
func (l *Lifecycle) Complete(taskID string) error {
	return l.terminate(taskID, StatusCompleted, "")
}

// Fail moves the task to failed. The failing action's description (or
// executor error) is retained on the task and surfaced in events.
func (l *Lifecycle) Fail(taskID string, reason string) error {
	return l.terminate(taskID, StatusFailed, reason)
}

// terminate applies a terminal transition, retains the task in the
// recent ring, appends the outcome record, and publishes events.
func (l *Lifecycle) terminate(taskID string, target Status, reason string) error {
	l.state.mu.Lock()
	cur := l.state.current
	if cur == nil || cur.ID != taskID {
		l.state.mu.Unlock()
		return ErrUnknownTask
	}
	if cur.Status.Terminal() {
		l.state.mu.Unlock()
		if cur.Status == target {
			return nil
		}
		return ErrTerminal
	}
	prev := cur.Status
	now := time.Now()
	cur.Status = target
	cur.CompletedAt = &now
	cur.Error = reason
	l.retainLocked(cur)
	snapshot := *cur
	l.state.mu.Unlock()

	l.appendOutcome(snapshot)
	l.publishStatus(taskID, target, prev, reason)

	switch target {
	case StatusFailed:
		l.bus.Publish(events.NewTypedEventForTask(taskID, events.SourceLifecycle, events.TaskFailedPayload{
			Description: reason,
			Error:       reason,
		}))
	default:
		l.bus.Publish(events.NewTypedEventForTask(taskID, events.SourceLifecycle, events.TaskCompletedPayload{
			Outcome: string(target),
			Error:   reason,
		}))
	}
	l.bus.ReleaseTask(taskID)
	return nil
}

// cancelLocked transitions the current task (if non-terminal) to
// cancelled. Caller must hold state.mu; the returned snapshot (if any)
// still needs its outcome record appended and events published.
func (l *Lifecycle) cancelLocked(reason string) (Task, bool) {
	cur := l.state.current
	if cur == nil || cur.Status.Terminal() {
		return Task{}, false
	}
	now := time.Now()
	cur.Status = StatusCancelled
	cur.CompletedAt = &now
	cur.Error = reason
	l.retainLocked(cur)
	return *cur, true
}

// finishCancel completes the out-of-lock half of a cancellation.
func (l *Lifecycle) finishCancel(snapshot Task, prev Status) {
	l.appendOutcome(snapshot)
	l.publishStatus(snapshot.ID, StatusCancelled, prev, snapshot.Error)
	l.bus.Publish(events.NewTypedEventForTask(snapshot.ID, events.SourceLifecycle, events.TaskCompletedPayload{
		Outcome: string(StatusCancelled),
		Error:   snapshot.Error,
	}))
}

func (l *Lifecycle) retainLocked(t *Task) {
	cp := *t
	l.recent = append(l.recent, &cp)
	if len(l.recent) > recentTasksCap {
		l.recent = l.recent[len(l.recent)-recentTasksCap:]
	}
}

// Recent returns retained terminal tasks, oldest first.
func (l *Lifecycle) Recent() []Task {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	out := make([]Task, len(l.recent))
	for i, t := range l.recent {
		out[i] = *t
	}
	return out
}

// Reachable reports whether the task id is the current task or one of
// the retained terminal tasks. The approval queue never holds a request
// for an unreachable task.
func (l *Lifecycle) Reachable(taskID string) bool {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	if cur := l.state.current; cur != nil && cur.ID == taskID {
		return true
	}
	for _, t := range l.recent {
		if t.ID == taskID {
			return true
		}
	}
	return false
}

func (l *Lifecycle) appendOutcome(t Task) {
	status := history.StatusSuccess
	if t.Status != StatusCompleted {
		status = history.StatusFailed
	}
	rec := history.ActionRecord{
		TaskID:      t.ID,
		ActionType:  history.TaskActionType,
		Description: t.Description,
		Status:      status,
		Timestamp:   time.Now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.Append(ctx, rec); err != nil {
		slog.Error("append task outcome", "task", t.ID, "error", err)
	}
}

func (l *Lifecycle) publishStatus(taskID string, status, prev Status, reason string) {
	l.bus.Publish(events.NewTypedEventForTask(taskID, events.SourceLifecycle, events.StatusChangedPayload{
		Status:   string(status),
		Previous: string(prev),
		Reason:   reason,
	}))
}
