package coordinator

import (
	"context"
	"time"
)

// AgentExecutor is the boundary to the component that decides what to
// attempt next and owns actual input injection. The coordinator only
// gates and reports; it never moves a pointer itself.
type AgentExecutor interface {
	// NextActions returns the executor's next batch of proposed actions
	// for the task, usually one. An empty batch with a nil error means
	// the task has no further work and completes.
	NextActions(ctx context.Context, taskID string) ([]ProposedAction, error)

	// Execute performs one approved (or trivially safe) action and
	// reports how long it took.
	Execute(ctx context.Context, taskID string, action ProposedAction) (time.Duration, error)

	// Stop tells the executor to abandon any in-flight work for the
	// task. Invoked on emergency stop; must not block.
	Stop(taskID string)
}
