package ws

import (
	"chat-relay/domain/event"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// frame is the outbound envelope. Clients switch on the event name.
type frame struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// client owns the two pumps of one socket. All writes go through writePump;
// gorilla connections allow at most one concurrent writer.
type client struct {
	log          *slog.Logger
	conn         *websocket.Conn
	connectionID string
	identity     string
	sink         *Sink
	timeouts     Timeouts
	maxFrame     int64
	done         chan struct{}
	closeOnce    sync.Once
}

func newClient(log *slog.Logger, conn *websocket.Conn, connectionID, identity string,
	sink *Sink, timeouts Timeouts, maxFrame int64) *client {
	return &client{
		log:          log,
		conn:         conn,
		connectionID: connectionID,
		identity:     identity,
		sink:         sink,
		timeouts:     timeouts,
		maxFrame:     maxFrame,
		done:         make(chan struct{}),
	}
}

type dispatchFunc func(ctx context.Context, c *client, raw []byte)

// readLoop consumes inbound frames until the peer closes or a deadline
// expires. Each pong extends the read deadline by the pong window.
func (c *client) readLoop(ctx context.Context, dispatch dispatchFunc) {
	c.conn.SetReadLimit(c.maxFrame)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.timeouts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.timeouts.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Unexpected close", "connection_id", c.connectionID, "error", err)
			}
			return
		}
		dispatch(ctx, c, raw)
	}
}

// writePump drains the sink onto the socket and keeps the connection alive
// with pings. It exits when the sink closes via close() or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(c.timeouts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeouts.Write))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case e := <-c.sink.Events():
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeouts.Write))
			payload, err := json.Marshal(frame{Event: e.EventName(), Payload: e})
			if err != nil {
				c.log.Error("Failed to encode event", "event", e.EventName(), "error", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeouts.Write))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// pushError reports a failed inbound operation back on this connection only.
func (c *client) pushError(ctx context.Context, reason string) {
	if err := c.sink.Consume(ctx, event.Error{Reason: reason}); err != nil {
		c.log.Warn("Failed to push error event", "connection_id", c.connectionID, "error", err)
	}
}
