package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned when an emit is attempted before the event
// channel has been established.
var ErrNotConnected = errors.New("transport not connected")

const sendBuffer = 256

// Conn is a bidirectional event channel to the relay. A single read pump and a
// single write pump preserve per-sender event ordering in both directions.
type Conn struct {
	ws     *websocket.Conn
	events chan Event
	send   chan Event
	done   chan struct{}
}

// Dial connects to the relay websocket endpoint and starts the pumps.
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", url, err)
	}
	c := &Conn{
		ws:     ws,
		events: make(chan Event, sendBuffer),
		send:   make(chan Event, sendBuffer),
		done:   make(chan struct{}),
	}
	go c.readPump(ctx)
	go c.writePump(ctx)
	return c, nil
}

// Emit queues an event for delivery to the relay.
func (c *Conn) Emit(t EventType, payload any) error {
	if c == nil {
		return ErrNotConnected
	}
	ev, err := NewEvent(t, payload)
	if err != nil {
		return err
	}
	select {
	case c.send <- ev:
		return nil
	case <-c.done:
		return ErrNotConnected
	}
}

// Events returns the inbound event stream. The channel closes when the
// connection ends.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Close tears down the websocket; pending inbound events may still drain.
func (c *Conn) Close() error {
	return c.ws.Close()
}

func (c *Conn) readPump(ctx context.Context) {
	defer func() {
		close(c.done)
		close(c.events)
	}()
	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Error("websocket read failed", "error", err)
			}
			return
		}
		var ev Event
		if err := json.Unmarshal(frame, &ev); err != nil {
			slog.Warn("dropping malformed event frame", "error", err)
			continue
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Conn) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case ev := <-c.send:
			frame, err := json.Marshal(ev)
			if err != nil {
				slog.Error("marshal outbound event", "event", ev.Type, "error", err)
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				slog.Error("websocket write failed", "event", ev.Type, "error", err)
				return
			}
		}
	}
}
