package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"cryptochat/internal/transport"
)

const sendBuffer = 256

// Client is one websocket connection on the relay side. The read pump feeds
// the hub loop; the write pump drains the per-client send queue, keeping
// delivery to each recipient ordered.
type Client struct {
	ctx      context.Context
	conn     *websocket.Conn
	hub      *Hub
	username string

	send      chan []byte
	closeOnce sync.Once
}

func newClient(ctx context.Context, conn *websocket.Conn, hub *Hub, username string) *Client {
	return &Client{
		ctx:      ctx,
		conn:     conn,
		hub:      hub,
		username: username,
		send:     make(chan []byte, sendBuffer),
	}
}

// Deliver queues an event for this client. A client that cannot keep up is
// dropped rather than allowed to stall the hub loop.
func (c *Client) Deliver(ev transport.Event) {
	frame, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal event for client", "username", c.username, "error", err)
		return
	}
	select {
	case c.send <- frame:
	default:
		slog.Warn("client send queue full, dropping connection", "username", c.username)
		c.Close()
	}
}

// Close shuts the send queue; the write pump then closes the socket.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		if err := c.conn.Close(); err != nil {
			slog.Debug("close websocket", "username", c.username, "error", err)
		}
	}()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Error("websocket read", "username", c.username, "error", err)
			}
			return
		}
		var ev transport.Event
		if err := json.Unmarshal(frame, &ev); err != nil {
			slog.Warn("invalid websocket payload", "username", c.username, "error", err)
			continue
		}
		c.hub.deliverInbound(c, ev)
	}
}

func (c *Client) writePump() {
	defer func() {
		if err := c.conn.Close(); err != nil {
			slog.Debug("close websocket", "username", c.username, "error", err)
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}
}
