package collab

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/coachsync/coachsync/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20 // 1 MiB
)

// client bridges one websocket to the owning hub. The gateway owns the
// socket exclusively; the hub only sees the Conn interface and the
// connection ID.
type client struct {
	id            string
	participantID string
	hub           *Hub
	socket        *websocket.Conn
	settings      Settings
	log           *zap.Logger

	send chan Envelope
	done chan struct{}
	once sync.Once

	reasonMu    sync.Mutex
	closeReason string
}

func newClient(id, participantID string, hub *Hub, socket *websocket.Conn, settings Settings, log *zap.Logger) *client {
	return &client{
		id:            id,
		participantID: participantID,
		hub:           hub,
		socket:        socket,
		settings:      settings,
		log:           log,
		send:          make(chan Envelope, settings.SendBuffer),
		done:          make(chan struct{}),
	}
}

// ID implements Conn.
func (c *client) ID() string {
	return c.id
}

// TrySend implements Conn: non-blocking, best effort.
func (c *client) TrySend(env Envelope) bool {
	select {
	case c.send <- env:
		return true
	case <-c.done:
		return true // already closing; nothing left to stall
	default:
		return false
	}
}

// Kick implements Conn. Queued frames are flushed before the socket closes;
// the first caller's reason rides on the close frame.
func (c *client) Kick(reason string) {
	c.once.Do(func() {
		c.reasonMu.Lock()
		c.closeReason = reason
		c.reasonMu.Unlock()
		close(c.done)
	})
}

func (c *client) kickReason() string {
	c.reasonMu.Lock()
	defer c.reasonMu.Unlock()
	return c.closeReason
}

func (c *client) readLoop() {
	defer func() {
		c.hub.Disconnect(c.id, "closed")
		c.Kick("closed")
	}()

	pongWait := c.settings.HeartbeatTimeout
	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.Touch(c.id)
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Debug("unexpected close", zap.Error(err))
			}
			return
		}

		if len(payload) == 0 {
			continue
		}

		frame, err := DecodeInbound(payload)
		if err != nil {
			// A malformed frame closes only the offending connection. The
			// error frame rides the send queue so the write pump stays the
			// sole socket writer.
			if errors.Is(err, ErrMalformedFrame) {
				c.TrySend(NewEnvelope(TypeError, ErrorPayload{
					Code:    "MALFORMED_FRAME",
					Message: err.Error(),
				}, time.Now()))
			}
			c.log.Debug("malformed frame", zap.Error(err))
			c.Kick("malformed_frame")
			return
		}

		c.hub.HandleFrame(c.id, frame)
	}
}

func (c *client) writeLoop() {
	ping := time.NewTicker(c.settings.HeartbeatInterval)
	defer func() {
		ping.Stop()
		_ = c.socket.Close()
		metrics.OpenConnections.Dec()
	}()

	for {
		select {
		case env := <-c.send:
			if !c.writeDirect(env) {
				c.Kick("write_failed")
				return
			}
		case <-ping.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Kick("write_failed")
				return
			}
		case <-c.done:
			c.flush()
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.kickReason()))
			return
		}
	}
}

// flush drains whatever the hub managed to queue before the close, so a
// final status_change or error frame still reaches the client.
func (c *client) flush() {
	for {
		select {
		case env := <-c.send:
			if !c.writeDirect(env) {
				return
			}
		default:
			return
		}
	}
}

func (c *client) writeDirect(env Envelope) bool {
	_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
	return c.socket.WriteJSON(env) == nil
}
