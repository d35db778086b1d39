package coordinator

import "errors"

var (
	// ErrAlreadyRunning is returned by Submit while another task is
	// non-terminal. No implicit queueing.
	ErrAlreadyRunning = errors.New("a task is already running")

	// ErrNotFound is returned when resolving an unknown or
	// already-resolved approval request.
	ErrNotFound = errors.New("approval request not found")

	// ErrStopped is returned for any dispatch or enqueue attempted while
	// the emergency stop is engaged. The action is discarded, never
	// queued for later replay.
	ErrStopped = errors.New("emergency stop engaged")

	// ErrDuplicateRequest is returned when an approval request id has
	// been seen before. Request ids are never reused.
	ErrDuplicateRequest = errors.New("duplicate approval request id")

	// ErrUnknownTask is returned for operations referencing a task other
	// than the current one.
	ErrUnknownTask = errors.New("unknown task")

	// ErrTerminal is returned for transitions out of a terminal status.
	ErrTerminal = errors.New("task is in a terminal state")

	// ErrRejected marks a task aborted because the operator rejected a
	// proposed action.
	ErrRejected = errors.New("action rejected by operator")
)
