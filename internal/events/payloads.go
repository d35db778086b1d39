package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// TASK EVENTS
// =============================================================================

// StatusChangedPayload reports a task status transition.
type StatusChangedPayload struct {
	Status   string `json:"status"`
	Previous string `json:"previous,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (StatusChangedPayload) EventType() EventType { return EventStatusChanged }

// ApprovalRequiredPayload announces a pending approval request. The
// fields are a hint only: subscribers must re-fetch the approval queue
// snapshot before rendering, the payload is not authoritative.
type ApprovalRequiredPayload struct {
	RequestID   string `json:"request_id"`
	ActionType  string `json:"action_type"`
	Description string `json:"description"`
	RiskLevel   string `json:"risk_level"`
	Pending     int    `json:"pending"`
}

func (ApprovalRequiredPayload) EventType() EventType { return EventApprovalRequired }

// ActionResultPayload reports the outcome of a single dispatched action.
type ActionResultPayload struct {
	RequestID   string        `json:"request_id,omitempty"`
	ActionType  string        `json:"action_type"`
	Description string        `json:"description,omitempty"`
	Status      string        `json:"status"`
	Duration    time.Duration `json:"duration,omitempty"`
	Error       string        `json:"error,omitempty"`
}

func (ActionResultPayload) EventType() EventType { return EventActionResult }

// TaskCompletedPayload reports a task reaching a terminal state.
type TaskCompletedPayload struct {
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

func (TaskCompletedPayload) EventType() EventType { return EventTaskCompleted }

// TaskFailedPayload reports an unrecoverable task failure with the
// failing action's description, which is always surfaced to the user.
type TaskFailedPayload struct {
	Description string `json:"description,omitempty"`
	Error       string `json:"error"`
}

func (TaskFailedPayload) EventType() EventType { return EventTaskFailed }

// =============================================================================
// SYSTEM EVENTS
// =============================================================================

// EmergencyStopPayload signals the stop guard changing state.
type EmergencyStopPayload struct {
	Engaged   bool      `json:"engaged"`
	EngagedAt time.Time `json:"engaged_at,omitempty"`
	Cleared   int       `json:"cleared,omitempty"`
}

func (EmergencyStopPayload) EventType() EventType { return EventEmergencyStop }

// EmergencyResetPayload signals an operator reset of the stop guard.
type EmergencyResetPayload struct{}

func (EmergencyResetPayload) EventType() EventType { return EventEmergencyReset }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

// NewTypedEvent creates an Event from a typed payload. The payload is
// round-tripped through JSON into the generic map form carried on the
// wire.
func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return NewTypedEventForTask("", source, payload)
}

// NewTypedEventForTask creates an Event bound to a task.
func NewTypedEventForTask(taskID string, source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		TaskID:    taskID,
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(payload EventPayload) map[string]any {
	data, err := json.Marshal(payload)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{}
	}
	return m
}

// decodePayload unmarshals an event's generic payload into a typed value.
func decodePayload(e Event, out any) bool {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// GetStatusChangedPayload extracts a typed payload, if the event carries one.
func GetStatusChangedPayload(e Event) (StatusChangedPayload, bool) {
	var p StatusChangedPayload
	if e.Type != EventStatusChanged {
		return p, false
	}
	return p, decodePayload(e, &p)
}

// GetApprovalRequiredPayload extracts a typed payload, if the event carries one.
func GetApprovalRequiredPayload(e Event) (ApprovalRequiredPayload, bool) {
	var p ApprovalRequiredPayload
	if e.Type != EventApprovalRequired {
		return p, false
	}
	return p, decodePayload(e, &p)
}

// GetActionResultPayload extracts a typed payload, if the event carries one.
func GetActionResultPayload(e Event) (ActionResultPayload, bool) {
	var p ActionResultPayload
	if e.Type != EventActionResult {
		return p, false
	}
	return p, decodePayload(e, &p)
}

// GetEmergencyStopPayload extracts a typed payload, if the event carries one.
func GetEmergencyStopPayload(e Event) (EmergencyStopPayload, bool) {
	var p EmergencyStopPayload
	if e.Type != EventEmergencyStop {
		return p, false
	}
	return p, decodePayload(e, &p)
}
