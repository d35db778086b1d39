package coordinator

import (
	"log/slog"
	"time"

	"github.com/overseer-dev/overseer/internal/events"
)

// StopGuard is the process-wide kill-switch. Once engaged it blocks new
// action dispatch and approval insertions and invalidates in-flight
// approval prompts until an explicit Reset. It shares the lifecycle's
// exclusion domain so the flag and the task status change together.
type StopGuard struct {
	state     *sharedState
	lifecycle *Lifecycle
	queue     *Queue
	bus       *events.Bus
}

func newStopGuard(state *sharedState, bus *events.Bus) *StopGuard {
	return &StopGuard{state: state, bus: bus}
}

// bind wires the guard to the lifecycle and queue it must interrupt.
// Separate from construction because the queue itself needs the guard.
func (g *StopGuard) bind(lifecycle *Lifecycle, queue *Queue) {
	g.lifecycle = lifecycle
	g.queue = queue
}

// IsEngaged reports the stop flag. Every dispatch decision reads this
// before acting.
func (g *StopGuard) IsEngaged() bool {
	g.state.mu.Lock()
	defer g.state.mu.Unlock()
	return g.state.stopped
}

// EngagedAt returns when the stop was engaged.
func (g *StopGuard) EngagedAt() (time.Time, bool) {
	g.state.mu.Lock()
	defer g.state.mu.Unlock()
	return g.state.stoppedAt, g.state.stopped
}

// Engage sets the stop flag, cancels the current non-terminal task, and
// discards all pending approval requests. Idempotent: engaging an
// already-engaged guard does not double-fire side effects.
func (g *StopGuard) Engage() {
	g.state.mu.Lock()
	if g.state.stopped {
		g.state.mu.Unlock()
		return
	}
	g.state.stopped = true
	g.state.stoppedAt = time.Now()

	var cancelled Task
	var prev Status
	hadTask := false
	if g.lifecycle != nil {
		if cur := g.state.current; cur != nil && !cur.Status.Terminal() {
			prev = cur.Status
			cancelled, hadTask = g.lifecycle.cancelLocked("emergency stop")
		}
	}
	engagedAt := g.state.stoppedAt
	g.state.mu.Unlock()

	// The flag is visible before the queue drains, so a dispatch racing
	// between risk classification and Enqueue gets ErrStopped rather
	// than slipping a request in after the clear.
	cleared := 0
	if g.queue != nil {
		cleared = g.queue.Clear()
	}

	slog.Warn("emergency stop engaged", "cleared", cleared, "task_cancelled", hadTask)

	taskID := ""
	if hadTask {
		taskID = cancelled.ID
		g.lifecycle.finishCancel(cancelled, prev)
	}
	g.bus.Publish(events.NewTypedEventForTask(taskID, events.SourceGuard, events.EmergencyStopPayload{
		Engaged:   true,
		EngagedAt: engagedAt,
		Cleared:   cleared,
	}))
	// The stop event is the cancelled task's last; its counter can go.
	g.bus.ReleaseTask(taskID)
}

// Reset clears the stop flag only. Nothing resumes: tasks cancelled at
// engage time stay cancelled and a fresh Submit is required. Idempotent.
func (g *StopGuard) Reset() {
	g.state.mu.Lock()
	if !g.state.stopped {
		g.state.mu.Unlock()
		return
	}
	g.state.stopped = false
	g.state.stoppedAt = time.Time{}
	g.state.mu.Unlock()

	slog.Info("emergency stop reset")
	g.bus.Publish(events.NewTypedEvent(events.SourceGuard, events.EmergencyResetPayload{}))
}
