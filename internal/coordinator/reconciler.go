package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// defaultReconcileSpec is the default tick schedule. A tunable, not a
// correctness requirement: the reconciler only corrects drift.
const defaultReconcileSpec = "@every 3s"

// Reconciler periodically re-fetches authoritative state and folds it
// into the read model, covering any gaps in event-stream delivery. It
// never resolves approvals itself; its only queue mutation is the expiry
// sweep, which routes through the queue's reject path.
type Reconciler struct {
	coord   *Coordinator
	cron    *cron.Cron
	entryID cron.EntryID
	limit   int
}

// NewReconciler schedules Tick on the given cron spec (empty means
// every 3 seconds).
func NewReconciler(coord *Coordinator, spec string) (*Reconciler, error) {
	if spec == "" {
		spec = defaultReconcileSpec
	}
	r := &Reconciler{
		coord: coord,
		cron:  cron.New(),
		limit: 50,
	}
	id, err := r.cron.AddFunc(spec, r.Tick)
	if err != nil {
		return nil, fmt.Errorf("schedule reconciler %q: %w", spec, err)
	}
	r.entryID = id
	return r, nil
}

// Start begins ticking in the background.
func (r *Reconciler) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running tick to finish.
func (r *Reconciler) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// Tick re-fetches task status, the pending-approval snapshot and recent
// history, and reconciles the read model last-writer-wins per entity.
func (r *Reconciler) Tick() {
	if swept := r.coord.Queue.SweepExpired(time.Now()); swept > 0 {
		slog.Info("expired approvals swept", "count", swept)
	}

	task, haveTask := r.coord.Lifecycle.Current()
	pending := r.coord.Queue.PendingCount()
	stopped := r.coord.Guard.IsEngaged()

	var seq uint64
	if haveTask {
		seq = r.coord.Bus().LastSeq(task.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	recent, err := r.coord.History().Recent(ctx, r.limit)
	if err != nil {
		slog.Error("reconcile history fetch", "error", err)
	}

	r.coord.Model.ApplyReconciled(task, haveTask, seq, pending, stopped, recent)
}
