package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/okatev/pulse/internal/core"
	"github.com/okatev/pulse/internal/domain"
)

const writeWait = 5 * time.Second

// Conn implements core.Connection over a gorilla WebSocket. Outbound frames
// go through a buffered channel consumed by a single write pump, which keeps
// per-connection delivery strictly ordered.
type Conn struct {
	id   core.ConnID
	user domain.UserID
	sock *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func NewConn(user domain.UserID, sock *websocket.Conn) *Conn {
	return &Conn{
		id:   core.ConnID(uuid.NewString()),
		user: user,
		sock: sock,
		send: make(chan core.Frame, 64),
	}
}

func (c *Conn) ID() core.ConnID     { return c.id }
func (c *Conn) User() domain.UserID { return c.user }

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.sock.Close()
	c.mu.Unlock()
}

// writePump pumps frames to the socket and keeps the connection alive with
// pings. Exits on context cancel, channel close, or write error.
func (c *Conn) writePump(ctx context.Context, pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Warn().Err(err).Str("module", "ws").Str("conn", string(c.id)).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads inbound messages until the socket drops, feeding each one
// to onMessage. pongWait bounds how long a silent peer stays connected.
func (c *Conn) readPump(ctx context.Context, readLimit int64, pongWait time.Duration, onMessage func([]byte)) {
	defer c.Close()
	c.sock.SetReadLimit(readLimit)
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.sock.ReadMessage()
			if err != nil {
				return
			}
			onMessage(data)
		}
	}
}
