package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/overseer-dev/overseer/internal/events"
)

func TestEventLogger_WriteAndReadBack(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus(64)
	defer bus.Close()

	el := NewEventLogger(dir, bus)
	defer el.Close()

	bus.Publish(events.Event{
		ID:        "evt-1",
		Type:      events.EventEmergencyStop,
		Timestamp: time.Now(),
		Source:    events.SourceGuard,
		Payload:   map[string]any{"engaged": true},
	})

	// Give the async subscriber time to process.
	time.Sleep(100 * time.Millisecond)

	data, err := os.ReadFile(filepath.Join(dir, "_system.jsonl"))
	if err != nil {
		t.Fatalf("read JSONL: %v", err)
	}

	var got events.Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != "evt-1" {
		t.Errorf("got ID %q, want %q", got.ID, "evt-1")
	}
	if got.Type != events.EventEmergencyStop {
		t.Errorf("got type %q, want %q", got.Type, events.EventEmergencyStop)
	}
}

func TestEventLogger_PlanRouting(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus(64)
	defer bus.Close()

	el := NewEventLogger(dir, bus)
	defer el.Close()

	bus.Publish(events.Event{
		ID:        "evt-system",
		Type:      events.EventEmergencyReset,
		Timestamp: time.Now(),
		Source:    events.SourceGuard,
	})
	bus.Publish(events.Event{
		ID:        "evt-plan",
		TaskID:    "task_abc123",
		Type:      events.EventStatusChanged,
		Timestamp: time.Now(),
		Source:    events.SourceLifecycle,
	})

	time.Sleep(100 * time.Millisecond)

	// System file should exist with the global event.
	if _, err := os.Stat(filepath.Join(dir, "_system.jsonl")); err != nil {
		t.Fatalf("_system.jsonl missing: %v", err)
	}

	// Plan file should exist.
	planPath := filepath.Join(dir, "task_abc123.jsonl")
	data, err := os.ReadFile(planPath)
	if err != nil {
		t.Fatalf("plan file missing: %v", err)
	}
	var got events.Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != "evt-plan" {
		t.Errorf("got ID %q, want %q", got.ID, "evt-plan")
	}
}

func TestEventLogger_AppendsInOrder(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus(64)
	defer bus.Close()

	el := NewEventLogger(dir, bus)
	defer el.Close()

	types := []events.EventType{
		events.EventStatusChanged,
		events.EventApprovalRequired,
		events.EventActionResult,
	}

	for i, et := range types {
		bus.Publish(events.Event{
			ID:        string(rune('a' + i)),
			TaskID:    "task_order",
			Type:      et,
			Timestamp: time.Now(),
			Source:    events.SourceLifecycle,
		})
	}

	time.Sleep(100 * time.Millisecond)

	f, err := os.Open(filepath.Join(dir, "task_order.jsonl"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var got []events.EventType
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e events.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal line %d: %v", len(got), err)
		}
		got = append(got, e.Type)
	}
	if len(got) != len(types) {
		t.Fatalf("got %d events, want %d", len(got), len(types))
	}
	for i := range types {
		if got[i] != types[i] {
			t.Errorf("line %d: got %q, want %q", i, got[i], types[i])
		}
	}
}

func TestEventLogger_DirectoryAutoCreation(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	bus := events.NewBus(64)
	defer bus.Close()

	el := NewEventLogger(dir, bus)
	defer el.Close()

	bus.Publish(events.Event{
		ID:        "evt-auto",
		Type:      events.EventEmergencyStop,
		Timestamp: time.Now(),
		Source:    events.SourceGuard,
	})

	time.Sleep(100 * time.Millisecond)

	if _, err := os.Stat(filepath.Join(dir, "_system.jsonl")); err != nil {
		t.Fatalf("directory not auto-created: %v", err)
	}
}
