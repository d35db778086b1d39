package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/overseer-dev/overseer/internal/events"
	"github.com/overseer-dev/overseer/internal/history"
)

// Options configures a Coordinator.
type Options struct {
	Bus        *events.Bus
	Store      history.Store
	Classifier Classifier
	Executor   AgentExecutor

	// SecurityMode is reported on tasks and /status; it does not change
	// coordinator behavior beyond the classifier the caller picked.
	SecurityMode string

	// ApprovalTTL bounds how long a request may stay pending before the
	// reconciler rejects it. Zero disables expiry.
	ApprovalTTL time.Duration
}

// Coordinator wires the lifecycle manager, approval queue, stop guard
// and read model together and drives the executor's dispatch loop.
type Coordinator struct {
	Lifecycle *Lifecycle
	Queue     *Queue
	Guard     *StopGuard
	Model     *ReadModel

	bus         *events.Bus
	store       history.Store
	classifier  Classifier
	executor    AgentExecutor
	secMode     string
	approvalTTL time.Duration

	mu      sync.Mutex
	waiters map[string]chan DrainResult
	cancels map[string]context.CancelFunc

	unsubscribe func()
	wg          sync.WaitGroup
}

// New creates a Coordinator. Classifier and Executor are required; Store
// defaults to an in-memory store.
func New(opts Options) (*Coordinator, error) {
	if opts.Bus == nil {
		return nil, errors.New("coordinator: event bus is required")
	}
	if opts.Classifier == nil {
		return nil, errors.New("coordinator: risk classifier is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("coordinator: agent executor is required")
	}
	store := opts.Store
	if store == nil {
		store = history.NewMemStore()
	}

	state := &sharedState{}
	guard := newStopGuard(state, opts.Bus)
	lifecycle := newLifecycle(state, store, opts.Bus)
	queue := NewQueue(guard)
	queue.reachable = lifecycle.Reachable
	guard.bind(lifecycle, queue)

	c := &Coordinator{
		Lifecycle:   lifecycle,
		Queue:       queue,
		Guard:       guard,
		Model:       NewReadModel(),
		bus:         opts.Bus,
		store:       store,
		classifier:  opts.Classifier,
		executor:    opts.Executor,
		secMode:     opts.SecurityMode,
		approvalTTL: opts.ApprovalTTL,
		waiters:     make(map[string]chan DrainResult),
		cancels:     make(map[string]context.CancelFunc),
	}

	queue.onResolved = c.recordResolution
	queue.onDrained = c.handleDrain
	c.Model.SetSecurityMode(opts.SecurityMode)

	// Event-path writer into the read model; the reconciler is the
	// second, authoritative writer.
	c.unsubscribe = opts.Bus.Subscribe(c.Model.ApplyEvent)

	return c, nil
}

// Submit creates a new task and starts its dispatch loop.
func (c *Coordinator) Submit(description string) (string, error) {
	task, err := c.Lifecycle.Submit(description, c.secMode)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancels[task.ID] = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runTask(ctx, task.ID)
	}()
	return task.ID, nil
}

// EmergencyStop engages the guard, interrupts the dispatch loop and
// tells the executor to abandon in-flight work. Safe to call repeatedly.
func (c *Coordinator) EmergencyStop() {
	task, ok := c.Lifecycle.Current()

	c.Guard.Engage()

	if ok && c.executor != nil {
		c.executor.Stop(task.ID)
	}
	c.mu.Lock()
	for id, cancel := range c.cancels {
		cancel()
		delete(c.cancels, id)
	}
	c.mu.Unlock()
}

// ResetEmergency clears the stop flag. Nothing resumes.
func (c *Coordinator) ResetEmergency() {
	c.Guard.Reset()
}

// Close interrupts any running task loop and detaches from the bus.
func (c *Coordinator) Close() {
	c.mu.Lock()
	for id, cancel := range c.cancels {
		cancel()
		delete(c.cancels, id)
	}
	c.mu.Unlock()
	c.wg.Wait()
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// runTask is the dispatch path: propose, classify, gate, execute,
// record, repeat. It exits on completion, failure, context cancellation
// or emergency stop.
func (c *Coordinator) runTask(ctx context.Context, taskID string) {
	defer func() {
		c.mu.Lock()
		delete(c.cancels, taskID)
		delete(c.waiters, taskID)
		c.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil || c.Guard.IsEngaged() {
			return
		}

		batch, err := c.executor.NextActions(ctx, taskID)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			_ = c.Lifecycle.Fail(taskID, fmt.Sprintf("executor: %v", err))
			return
		}
		if len(batch) == 0 {
			if err := c.Lifecycle.Complete(taskID); err != nil {
				slog.Debug("complete skipped", "task", taskID, "error", err)
			}
			return
		}

		approvedSet, ok := c.gate(ctx, taskID, batch)
		if !ok {
			return
		}

		for _, action := range batch {
			if gated(c.classifier, action) && !approvedSet[actionKey(action)] {
				// Can only happen if the snapshot bookkeeping broke;
				// refuse to dispatch an unapproved risky action.
				_ = c.Lifecycle.Fail(taskID, fmt.Sprintf("action %q missing approval", action.Type))
				return
			}
			if !c.dispatch(ctx, taskID, action) {
				return
			}
		}
	}
}

// gate enqueues approval requests for every risky action in the batch
// and blocks until the pending set drains. Returns the approved set and
// whether the loop should continue.
func (c *Coordinator) gate(ctx context.Context, taskID string, batch []ProposedAction) (map[string]bool, bool) {
	approved := make(map[string]bool)

	var requests []ApprovalRequest
	for _, action := range batch {
		level := c.classifier.Classify(action)
		if !level.RequiresApproval() {
			continue
		}
		req := ApprovalRequest{
			ID:        GenerateRequestID(),
			TaskID:    taskID,
			Action:    action,
			Risk:      level,
			CreatedAt: time.Now(),
		}
		if c.approvalTTL > 0 {
			exp := req.CreatedAt.Add(c.approvalTTL)
			req.ExpiresAt = &exp
		}
		requests = append(requests, req)
	}

	if len(requests) == 0 {
		return approved, true
	}

	waitCh := make(chan DrainResult, 1)
	c.mu.Lock()
	c.waiters[taskID] = waitCh
	c.mu.Unlock()

	// Transition before the requests exist: once they are resolvable a
	// drain may fire at any moment, and its Resume must only ever see
	// the task already awaiting approval.
	if err := c.Lifecycle.MarkAwaitingApproval(taskID); err != nil {
		slog.Debug("awaiting-approval transition skipped", "task", taskID, "error", err)
	}

	// The whole batch is inserted in one queue critical section, so a
	// resolution of the first request can never drain the pending set
	// while the rest of the batch is still outside the queue.
	if err := c.Queue.EnqueueBatch(requests); err != nil {
		// ErrStopped: the guard already cancelled the task. Anything
		// else would strand the task awaiting approvals that do not
		// exist, so it fails instead.
		slog.Info("enqueue refused", "task", taskID, "error", err)
		if !errors.Is(err, ErrStopped) {
			_ = c.Lifecycle.Fail(taskID, fmt.Sprintf("approval enqueue: %v", err))
		}
		return nil, false
	}
	pending := c.Queue.PendingCount()
	for _, req := range requests {
		c.bus.Publish(events.NewTypedEventForTask(taskID, events.SourceQueue, events.ApprovalRequiredPayload{
			RequestID:   req.ID,
			ActionType:  req.Action.Type,
			Description: req.Action.Description,
			RiskLevel:   string(req.Risk),
			Pending:     pending,
		}))
	}

	select {
	case res := <-waitCh:
		if len(res.Rejected) > 0 {
			first := res.Rejected[0]
			_ = c.Lifecycle.Fail(taskID, fmt.Sprintf("%s: %s", ErrRejected, first.Action.Description))
			return nil, false
		}
		for _, req := range res.Approved {
			approved[actionKey(req.Action)] = true
		}
		return approved, true
	case <-ctx.Done():
		return nil, false
	}
}

// dispatch runs one action through the executor with a final stop-flag
// check, records the result, and reports whether the loop continues.
func (c *Coordinator) dispatch(ctx context.Context, taskID string, action ProposedAction) bool {
	if c.Guard.IsEngaged() {
		return false
	}

	start := time.Now()
	dur, err := c.executor.Execute(ctx, taskID, action)
	if ctx.Err() != nil {
		return false
	}
	if dur == 0 {
		dur = time.Since(start)
	}

	status := history.StatusSuccess
	errMsg := ""
	if err != nil {
		status = history.StatusFailed
		errMsg = err.Error()
	}
	c.appendRecord(history.ActionRecord{
		TaskID:      taskID,
		ActionType:  action.Type,
		Description: action.Description,
		Status:      status,
		Timestamp:   time.Now(),
		Duration:    dur,
	})
	c.bus.Publish(events.NewTypedEventForTask(taskID, events.SourceExecutor, events.ActionResultPayload{
		ActionType:  action.Type,
		Description: action.Description,
		Status:      string(status),
		Duration:    dur,
		Error:       errMsg,
	}))

	if err != nil {
		_ = c.Lifecycle.Fail(taskID, fmt.Sprintf("%s: %v", action.Description, err))
		return false
	}
	return true
}

// recordResolution writes one ActionRecord per resolved request.
func (c *Coordinator) recordResolution(req ApprovalRequest, approved bool) {
	status := history.StatusApproved
	if !approved {
		status = history.StatusRejected
	}
	c.appendRecord(history.ActionRecord{
		TaskID:      req.TaskID,
		ActionType:  req.Action.Type,
		Description: req.Action.Description,
		Status:      status,
		Timestamp:   time.Now(),
	})
	c.bus.Publish(events.NewTypedEventForTask(req.TaskID, events.SourceQueue, events.ActionResultPayload{
		RequestID:   req.ID,
		ActionType:  req.Action.Type,
		Description: req.Action.Description,
		Status:      string(status),
	}))
}

// handleDrain resumes the task when every pending request resolved
// approved, then wakes the dispatch loop exactly once.
func (c *Coordinator) handleDrain(res DrainResult) {
	if len(res.Rejected) == 0 {
		if err := c.Lifecycle.Resume(res.TaskID); err != nil {
			slog.Debug("resume skipped", "task", res.TaskID, "error", err)
		}
	}

	c.mu.Lock()
	ch := c.waiters[res.TaskID]
	delete(c.waiters, res.TaskID)
	c.mu.Unlock()

	if ch != nil {
		ch <- res
	}
}

func (c *Coordinator) appendRecord(rec history.ActionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.store.Append(ctx, rec); err != nil {
		slog.Error("append action record", "task", rec.TaskID, "error", err)
	}
}

// History exposes the coordinator's record store.
func (c *Coordinator) History() history.Store { return c.store }

// Bus exposes the coordinator's event bus.
func (c *Coordinator) Bus() *events.Bus { return c.bus }

// SecurityMode reports the configured mode string.
func (c *Coordinator) SecurityMode() string { return c.secMode }

func gated(cl Classifier, action ProposedAction) bool {
	return cl.Classify(action).RequiresApproval()
}

func actionKey(a ProposedAction) string {
	return a.Type + "\x00" + a.Description
}
