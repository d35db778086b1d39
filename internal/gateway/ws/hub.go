package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/overseer-dev/overseer/internal/events"
)

// Client represents a connected WebSocket client subscribed to one
// task's execution stream.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	planID string
	hub    *Hub
}

// Hub manages WebSocket clients and bridges bus events to them. A slow
// client's frames are dropped rather than back-pressuring the
// coordinator; the client recovers by polling /status and /approvals.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	bus         *events.Bus
	unsubscribe func()
}

// NewHub creates a hub bridging the event bus to execution sockets.
func NewHub(bus *events.Bus) *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		bus:     bus,
	}

	h.unsubscribe = bus.Subscribe(func(e events.Event) {
		frame, err := NewEventFrame(string(e.Type), e.TaskID, e.Seq, summarize(e), e.Payload)
		if err != nil {
			slog.Error("marshal event frame", "error", err)
			return
		}
		data, err := MarshalFrame(frame)
		if err != nil {
			slog.Error("marshal frame", "error", err)
			return
		}
		h.push(e.TaskID, data)

		// Engaging the emergency stop ends the stream for the stopped
		// task: consumers must stop expecting further progress.
		if e.Type == events.EventEmergencyStop && e.TaskID != "" {
			h.closePlan(e.TaskID, "emergency stop engaged")
		}
	})

	return h
}

// push sends data to every client subscribed to the task. Global events
// (empty task id) go to everyone.
func (h *Hub) push(planID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if planID != "" && c.planID != planID {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client too slow, frame dropped.
		}
	}
}

// closePlan disconnects every client subscribed to the task.
func (h *Hub) closePlan(planID, reason string) {
	data, err := MarshalFrame(NewCloseFrame(planID, reason))
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.planID != planID {
			continue
		}
		select {
		case c.send <- data:
		default:
		}
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	slog.Info("ws client connected", "plan", c.planID, "clients", len(h.clients))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		slog.Info("ws client disconnected", "plan", c.planID, "clients", len(h.clients))
	}
}

// ServeWS handles a WebSocket upgrade for one plan's execution stream.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, planID string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for dev
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, 256),
		planID: planID,
		hub:    h,
	}

	h.register(client)

	ctx := r.Context()
	go client.writePump(ctx)
	client.readPump(ctx)
}

// readPump drains the connection. The socket is receive-only for the
// client; anything it sends is discarded. Reading is still required to
// notice disconnects and to process control frames.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("ws read closed", "status", websocket.CloseStatus(err))
			} else {
				slog.Debug("ws read error", "error", err)
			}
			return
		}
	}
}

// writePump writes queued frames to the WS connection.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "stream ended")
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close shuts down the hub and all client connections.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		delete(h.clients, c)
	}
}

// summarize renders a short human-readable message for a frame.
func summarize(e events.Event) string {
	switch e.Type {
	case events.EventStatusChanged:
		if p, ok := events.GetStatusChangedPayload(e); ok {
			return "status: " + p.Status
		}
	case events.EventApprovalRequired:
		if p, ok := events.GetApprovalRequiredPayload(e); ok {
			return fmt.Sprintf("approval required: %s (%s)", p.Description, p.RiskLevel)
		}
	case events.EventActionResult:
		if p, ok := events.GetActionResultPayload(e); ok {
			return fmt.Sprintf("%s: %s", p.ActionType, p.Status)
		}
	case events.EventEmergencyStop:
		return "emergency stop engaged"
	case events.EventEmergencyReset:
		return "emergency stop reset"
	}
	return string(e.Type)
}
