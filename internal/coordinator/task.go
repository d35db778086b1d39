// Package coordinator implements the approval coordinator: it tracks the
// lifecycle of one in-flight computer-use task, gates risky agent actions
// behind a human approval queue, and enforces a process-wide emergency
// stop. It never executes actions itself; execution belongs to the
// externally owned AgentExecutor.
package coordinator

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusIdle             Status = "idle"
	StatusRunning          Status = "running"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusCancelled        Status = "cancelled"
)

// Terminal reports whether the status is a terminal state. A terminal
// task never re-enters any prior state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Task is one end-to-end agent run from submission to a terminal status.
type Task struct {
	ID           string     `json:"id"`
	Description  string     `json:"description"`
	Status       Status     `json:"status"`
	SecurityMode string     `json:"security_mode"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// ProposedAction is a single primitive operation (click, type, ...)
// proposed by the agent executor.
type ProposedAction struct {
	Type        string         `json:"action_type"`
	Description string         `json:"description"`
	Params      map[string]any `json:"params,omitempty"`
}

// ApprovalRequest is a pending, human-reviewable representation of a
// proposed action. It is immutable once resolved; resolution produces an
// ActionRecord, it never mutates the request.
type ApprovalRequest struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"plan_id"`
	Action    ProposedAction `json:"action"`
	Risk      RiskLevel      `json:"risk_level"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

// GenerateTaskID creates a unique task identifier.
func GenerateTaskID() string {
	u := uuid.New().String()
	return "task_" + strings.ReplaceAll(u[:8], "-", "")
}

// GenerateRequestID creates a unique approval request identifier.
// Request ids are never reused: every call draws from a fresh UUID.
func GenerateRequestID() string {
	u := uuid.New().String()
	return "req_" + strings.ReplaceAll(u[:8], "-", "")
}
