// ABOUTME: Per-connection WebSocket client with read and write pumps
// ABOUTME: Enforces read limits and keepalive deadlines, serializes all writes through one goroutine

package server

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds how long a single frame write may take.
	writeWait = 10 * time.Second

	// sendBufferSize is the outbound queue depth per connection. Events
	// beyond this are dropped rather than blocking the hubs.
	sendBufferSize = 32
)

// Client is one live WebSocket connection owned by an authenticated user.
// All writes go through the send channel and the write pump; the read pump
// is driven by the connection handler's goroutine.
type Client struct {
	ID       string
	Username string

	conn *websocket.Conn
	send chan Event

	maxMessageSize int64
	pongTimeout    time.Duration

	logger *slog.Logger
}

// readPump consumes frames from the connection until it closes. Each decoded
// frame is passed to onFrame; a nil onFrame discards client frames, which is
// what the presence endpoint wants. Returns when the connection is gone.
func (c *Client) readPump(onFrame func(Frame)) {
	defer c.conn.Close() //nolint:errcheck

	c.conn.SetReadLimit(c.maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				c.logger.Debug("read failed", "connection_id", c.ID, "error", err)
			}
			return
		}

		if onFrame == nil {
			continue
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.logger.Debug("malformed frame", "connection_id", c.ID, "error", err)
			c.trySend(Event{Type: EventError, Payload: ErrorPayload{Message: "malformed frame"}})
			continue
		}
		onFrame(frame)
	}
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with periodic pings. A closed send channel ends the pump with a
// normal close frame.
func (c *Client) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck
	}()

	for {
		select {
		case evt, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(evt); err != nil {
				c.logger.Debug("write failed", "connection_id", c.ID, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend queues an event without blocking, dropping it when the buffer is
// full. Only safe to call from the client's own pump goroutines; everyone
// else goes through Server.SendToConnection, which guards against a closed
// channel.
func (c *Client) trySend(evt Event) {
	select {
	case c.send <- evt:
	default:
		c.logger.Warn("send buffer full, dropping event",
			"connection_id", c.ID,
			"event", evt.Type,
		)
	}
}
