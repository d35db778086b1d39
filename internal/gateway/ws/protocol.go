// Package ws implements the receive-only execution socket: the server
// pushes event frames, the client never sends commands.
package ws

import "encoding/json"

// FrameType represents the type of WebSocket frame.
type FrameType string

const (
	FrameTypeEvent FrameType = "event"
	FrameTypeClose FrameType = "close"
)

// Frame is the WebSocket push envelope. Seq is the task-local sequence
// number; clients reconcile ordering with it, not with arrival order.
type Frame struct {
	Type    FrameType       `json:"type"`
	Event   string          `json:"event,omitempty"`
	PlanID  string          `json:"plan_id,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Message string          `json:"message,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarshalFrame serializes a Frame to JSON bytes.
func MarshalFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// UnmarshalFrame deserializes JSON bytes into a Frame.
func UnmarshalFrame(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}

// NewEventFrame creates a Frame for pushing an event to a client.
func NewEventFrame(event, planID string, seq uint64, message string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:    FrameTypeEvent,
		Event:   event,
		PlanID:  planID,
		Seq:     seq,
		Message: message,
		Payload: data,
	}, nil
}

// NewCloseFrame creates the final frame sent before the server closes
// the socket (emergency stop or task end).
func NewCloseFrame(planID, reason string) Frame {
	return Frame{
		Type:    FrameTypeClose,
		PlanID:  planID,
		Message: reason,
	}
}
