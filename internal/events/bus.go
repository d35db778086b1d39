// Package events provides the in-memory event bus that carries task
// execution events from the coordinator to its observers.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrBusClosed = errors.New("event bus is closed")
)

// EventType represents the type of event.
type EventType string

const (
	// Task lifecycle
	EventStatusChanged    EventType = "task.status_changed"
	EventApprovalRequired EventType = "task.approval_required"
	EventActionResult     EventType = "task.action_result"
	EventTaskCompleted    EventType = "task.completed"
	EventTaskFailed       EventType = "task.failed"

	// Process-wide
	EventEmergencyStop  EventType = "system.emergency_stop"
	EventEmergencyReset EventType = "system.emergency_reset"
)

// EventSource identifies the component that emitted an event.
type EventSource string

const (
	SourceLifecycle  EventSource = "lifecycle"
	SourceQueue      EventSource = "queue"
	SourceGuard      EventSource = "guard"
	SourceReconciler EventSource = "reconciler"
	SourceExecutor   EventSource = "executor"
)

// Event represents an event in the system. Seq is a task-local sequence
// number assigned at publish; consumers order events by Seq, never by
// Timestamp.
type Event struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"task_id,omitempty"`
	Type      EventType      `json:"type"`
	Seq       uint64         `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	Source    EventSource    `json:"source"`
	Payload   map[string]any `json:"payload"`
}

// eventIDCounter is used to generate sequential event IDs.
var eventIDCounter uint64

func generateEventID() string {
	seq := atomic.AddUint64(&eventIDCounter, 1)
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), seq)
}

// Subscriber is a function that receives events.
type Subscriber func(Event)

type subscription struct {
	id         int
	taskID     string
	eventTypes []EventType
	handler    Subscriber
}

// Bus is an in-memory event bus. Publishing never blocks; each
// subscriber is served on its own bounded queue and events are dropped
// for subscribers that fall behind (drop-newest — a lagging consumer
// re-syncs through the status reconciler, it never replays stale state).
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscription
	nextID      int
	eventChan   chan Event
	taskSeq     map[string]uint64
	ringBuffer  *RingBuffer
	closed      bool
	done        chan struct{}
}

// NewBus creates a new event bus with the given dispatch buffer size.
func NewBus(bufferSize int) *Bus {
	b := &Bus{
		subscribers: make(map[int]*subscription),
		eventChan:   make(chan Event, bufferSize),
		taskSeq:     make(map[string]uint64),
		ringBuffer:  NewRingBuffer(bufferSize),
		done:        make(chan struct{}),
	}
	go b.dispatch()
	return b
}

func (b *Bus) dispatch() {
	for {
		select {
		case event := <-b.eventChan:
			b.ringBuffer.Add(event)
			b.notifySubscribers(event)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) notifySubscribers(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if b.matches(sub, event) {
			go sub.handler(event)
		}
	}
}

func (b *Bus) matches(sub *subscription, event Event) bool {
	if sub.taskID != "" && sub.taskID != event.TaskID {
		return false
	}
	if len(sub.eventTypes) == 0 {
		return true
	}
	for _, t := range sub.eventTypes {
		if t == event.Type {
			return true
		}
	}
	return false
}

// Publish assigns the event a task-local sequence number and sends it to
// the bus. It never blocks: if the dispatch buffer is full the event is
// dropped (observers recover via reconciliation).
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.taskSeq[event.TaskID]++
	event.Seq = b.taskSeq[event.TaskID]
	b.mu.Unlock()

	select {
	case b.eventChan <- event:
	default:
	}
}

// PublishSync is like Publish but waits for buffer space, honoring ctx.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.taskSeq[event.TaskID]++
	event.Seq = b.taskSeq[event.TaskID]
	b.mu.Unlock()

	select {
	case b.eventChan <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a handler for specific event types.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(handler Subscriber, eventTypes ...EventType) func() {
	return b.subscribe("", handler, eventTypes)
}

// SubscribeTask registers a handler that only receives events for one task.
func (b *Bus) SubscribeTask(taskID string, handler Subscriber, eventTypes ...EventType) func() {
	return b.subscribe(taskID, handler, eventTypes)
}

func (b *Bus) subscribe(taskID string, handler Subscriber, eventTypes []EventType) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	b.subscribers[id] = &subscription{
		id:         id,
		taskID:     taskID,
		eventTypes: eventTypes,
		handler:    handler,
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, id)
	}
}

// SubscribeChan returns a bounded channel that receives events. Events
// are dropped when the channel is full; the producer never blocks.
func (b *Bus) SubscribeChan(bufSize int, eventTypes ...EventType) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)

	unsubscribe := b.Subscribe(func(e Event) {
		select {
		case ch <- e:
		default:
		}
	}, eventTypes...)

	var once sync.Once
	return ch, func() {
		once.Do(unsubscribe)
	}
}

// History returns recent events from the ring buffer.
func (b *Bus) History(limit int) []Event {
	return b.ringBuffer.Get(limit)
}

// LastSeq returns the highest sequence number published for a task, or
// zero once the task's counter has been released.
func (b *Bus) LastSeq(taskID string) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.taskSeq[taskID]
}

// ReleaseTask drops the task's sequence counter. Called after the
// task's final event has been published; counters for terminal tasks
// would otherwise accumulate for the life of the process.
func (b *Bus) ReleaseTask(taskID string) {
	if taskID == "" {
		return
	}
	b.mu.Lock()
	delete(b.taskSeq, taskID)
	b.mu.Unlock()
}

// Close shuts down the event bus.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	close(b.done)
}

// RingBuffer is a circular buffer for storing recent events.
type RingBuffer struct {
	mu     sync.RWMutex
	events []Event
	size   int
	pos    int
	count  int
}

// NewRingBuffer creates a new ring buffer.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		events: make([]Event, size),
		size:   size,
	}
}

func (r *RingBuffer) Add(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.pos] = event
	r.pos = (r.pos + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

func (r *RingBuffer) Get(n int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}

	result := make([]Event, n)
	start := (r.pos - n + r.size) % r.size
	for i := 0; i < n; i++ {
		result[i] = r.events[(start+i)%r.size]
	}
	return result
}

func (r *RingBuffer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos = 0
	r.count = 0
}
