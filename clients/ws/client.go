// Package ws provides a WebSocket client for watching an Overseer task's
// event stream.
package ws

import (
	"context"
	"fmt"

	"github.com/coder/websocket"

	wsprotocol "github.com/overseer-dev/overseer/internal/gateway/ws"
)

// Client streams event frames for a single task from the gateway.
type Client struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// Dial connects to the gateway's event stream for the given plan.
// baseURL is e.g. "ws://127.0.0.1:18430".
func Dial(ctx context.Context, baseURL, planID string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, baseURL+"/ws/execute/"+planID, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}

	clientCtx, cancel := context.WithCancel(ctx)

	return &Client{
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
	}, nil
}

// ReadFrame reads the next frame from the stream. A close frame is returned
// like any other; callers should stop reading after one.
func (c *Client) ReadFrame() (wsprotocol.Frame, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	return wsprotocol.UnmarshalFrame(data)
}

// Watch reads frames until the stream ends or ctx is cancelled, invoking fn
// for each one. It returns nil after a close frame.
func (c *Client) Watch(fn func(wsprotocol.Frame) error) error {
	for {
		frame, err := c.ReadFrame()
		if err != nil {
			return err
		}
		if err := fn(frame); err != nil {
			return err
		}
		if frame.Type == wsprotocol.FrameTypeClose {
			return nil
		}
	}
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
