package coordinator

import (
	"log/slog"
	"sync"
	"time"
)

// DrainResult describes the resolution of every pending request for a
// task, delivered once when its pending set empties.
type DrainResult struct {
	TaskID   string
	Approved []ApprovalRequest // insertion order
	Rejected []ApprovalRequest // insertion order
}

// Queue holds pending approval requests in insertion order. Resolution
// is single-use: approving or rejecting a request removes it, and a
// second call for the same id gets ErrNotFound, which guards against
// duplicate UI-triggered or network-retried resolutions.
type Queue struct {
	mu      sync.Mutex
	order   []string
	byID    map[string]*ApprovalRequest
	used    map[string]struct{}
	perTask map[string]*taskPending

	guard *StopGuard

	// reachable rejects requests for task ids the lifecycle does not
	// know. Optional; the coordinator wires it to Lifecycle.Reachable.
	reachable func(taskID string) bool

	// onResolved fires once per resolved request; onDrained fires once
	// when the last pending request for a task resolves. Both are
	// invoked outside the queue lock.
	onResolved func(req ApprovalRequest, approved bool)
	onDrained  func(res DrainResult)
}

type taskPending struct {
	count    int
	approved []ApprovalRequest
	rejected []ApprovalRequest
}

// NewQueue creates an empty approval queue gated by the stop guard.
func NewQueue(guard *StopGuard) *Queue {
	return &Queue{
		byID:    make(map[string]*ApprovalRequest),
		used:    make(map[string]struct{}),
		perTask: make(map[string]*taskPending),
		guard:   guard,
	}
}

// Enqueue inserts a single pending request. Equivalent to a one-element
// EnqueueBatch.
func (q *Queue) Enqueue(req ApprovalRequest) error {
	return q.EnqueueBatch([]ApprovalRequest{req})
}

// EnqueueBatch inserts every request in one critical section, so the
// batch only becomes resolvable as a whole: a concurrent Approve can
// never observe, and drain, a partially inserted pending set. The batch
// is validated up front and refused in full on the first bad request.
// The stop flag is re-checked inside the critical section so an action
// flagged before a concurrent Engage can never reach the queue
// afterwards.
func (q *Queue) EnqueueBatch(reqs []ApprovalRequest) error {
	if len(reqs) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.guard != nil && q.guard.IsEngaged() {
		return ErrStopped
	}
	ids := make(map[string]struct{}, len(reqs))
	for _, req := range reqs {
		if _, seen := q.used[req.ID]; seen {
			return ErrDuplicateRequest
		}
		if _, seen := ids[req.ID]; seen {
			return ErrDuplicateRequest
		}
		ids[req.ID] = struct{}{}
		if q.reachable != nil && !q.reachable(req.TaskID) {
			return ErrUnknownTask
		}
	}

	for _, req := range reqs {
		cp := req
		q.used[req.ID] = struct{}{}
		q.byID[req.ID] = &cp
		q.order = append(q.order, req.ID)

		tp := q.perTask[req.TaskID]
		if tp == nil {
			tp = &taskPending{}
			q.perTask[req.TaskID] = tp
		}
		tp.count++

		slog.Debug("approval enqueued", "request", req.ID, "task", req.TaskID, "risk", req.Risk)
	}
	return nil
}

// Pending returns a snapshot of pending requests in insertion order.
func (q *Queue) Pending() []ApprovalRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]ApprovalRequest, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.byID[id])
	}
	return out
}

// PendingCount returns the number of pending requests.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Approve resolves a single request as approved.
func (q *Queue) Approve(requestID string) error {
	return q.resolveOne(requestID, true)
}

// Reject resolves a single request as rejected.
func (q *Queue) Reject(requestID string) error {
	return q.resolveOne(requestID, false)
}

func (q *Queue) resolveOne(requestID string, approved bool) error {
	q.mu.Lock()
	req, ok := q.byID[requestID]
	if !ok {
		q.mu.Unlock()
		return ErrNotFound
	}
	resolved, drained := q.removeLocked(*req, approved)
	q.mu.Unlock()

	q.fire([]resolution{resolved}, drained)
	return nil
}

// ApproveAll resolves the snapshot of requests pending at call time as
// approved and returns the count. Requests enqueued concurrently are
// not included.
func (q *Queue) ApproveAll() int {
	return q.resolveAll(true)
}

// RejectAll resolves the snapshot of requests pending at call time as
// rejected and returns the count.
func (q *Queue) RejectAll() int {
	return q.resolveAll(false)
}

func (q *Queue) resolveAll(approved bool) int {
	q.mu.Lock()
	snapshot := make([]string, len(q.order))
	copy(snapshot, q.order)

	var resolutions []resolution
	var drains []DrainResult
	for _, id := range snapshot {
		req, ok := q.byID[id]
		if !ok {
			continue
		}
		res, drain := q.removeLocked(*req, approved)
		resolutions = append(resolutions, res)
		if drain != nil {
			drains = append(drains, *drain)
		}
	}
	q.mu.Unlock()

	for _, res := range resolutions {
		if q.onResolved != nil {
			q.onResolved(res.req, res.approved)
		}
	}
	for _, d := range drains {
		if q.onDrained != nil {
			q.onDrained(d)
		}
	}
	return len(resolutions)
}

// SweepExpired rejects every pending request whose expiry has passed.
// Called by the status reconciler; resolution runs through the same
// single-use path as an operator reject.
func (q *Queue) SweepExpired(now time.Time) int {
	q.mu.Lock()
	var expired []string
	for _, id := range q.order {
		req := q.byID[id]
		if req.ExpiresAt != nil && now.After(*req.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	var resolutions []resolution
	var drains []DrainResult
	for _, id := range expired {
		req, ok := q.byID[id]
		if !ok {
			continue
		}
		res, drain := q.removeLocked(*req, false)
		resolutions = append(resolutions, res)
		if drain != nil {
			drains = append(drains, *drain)
		}
	}
	q.mu.Unlock()

	for _, res := range resolutions {
		slog.Info("approval expired", "request", res.req.ID, "task", res.req.TaskID)
		if q.onResolved != nil {
			q.onResolved(res.req, false)
		}
	}
	for _, d := range drains {
		if q.onDrained != nil {
			q.onDrained(d)
		}
	}
	return len(resolutions)
}

// Clear discards every pending request without resolution. Used by the
// stop guard: invalidated prompts produce no action records and no
// drain notifications, subsequent Approve/Reject calls get ErrNotFound.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.order)
	q.order = nil
	q.byID = make(map[string]*ApprovalRequest)
	q.perTask = make(map[string]*taskPending)
	return n
}

type resolution struct {
	req      ApprovalRequest
	approved bool
}

// removeLocked unlinks a request and accumulates its outcome. Returns
// the resolution and, when this was the task's last pending request,
// the drain result. Caller holds q.mu.
func (q *Queue) removeLocked(req ApprovalRequest, approved bool) (resolution, *DrainResult) {
	delete(q.byID, req.ID)
	for i, id := range q.order {
		if id == req.ID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}

	tp := q.perTask[req.TaskID]
	if tp == nil {
		tp = &taskPending{}
		q.perTask[req.TaskID] = tp
	}
	if approved {
		tp.approved = append(tp.approved, req)
	} else {
		tp.rejected = append(tp.rejected, req)
	}
	tp.count--

	if tp.count > 0 {
		return resolution{req: req, approved: approved}, nil
	}

	drain := &DrainResult{
		TaskID:   req.TaskID,
		Approved: tp.approved,
		Rejected: tp.rejected,
	}
	delete(q.perTask, req.TaskID)
	return resolution{req: req, approved: approved}, drain
}

func (q *Queue) fire(resolutions []resolution, drain *DrainResult) {
	for _, res := range resolutions {
		if q.onResolved != nil {
			q.onResolved(res.req, res.approved)
		}
	}
	if drain != nil && q.onDrained != nil {
		q.onDrained(*drain)
	}
}
