package ws

import (
	"encoding/json"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	frame, err := NewEventFrame("task.status_changed", "task_abc", 7, "status: running",
		map[string]any{"status": "running"})
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}

	data, err := MarshalFrame(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := UnmarshalFrame(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != FrameTypeEvent || got.PlanID != "task_abc" || got.Seq != 7 {
		t.Errorf("unexpected frame: %+v", got)
	}

	var payload map[string]any
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["status"] != "running" {
		t.Errorf("payload status = %v", payload["status"])
	}
}

func TestCloseFrame(t *testing.T) {
	f := NewCloseFrame("task_abc", "emergency stop engaged")
	if f.Type != FrameTypeClose {
		t.Errorf("type = %s, want close", f.Type)
	}
	data, err := MarshalFrame(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalFrame(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Message != "emergency stop engaged" {
		t.Errorf("message = %q", got.Message)
	}
}
