package ws

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/edlive/classrelay/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

// Conn wraps one websocket with the buffered outbound channel the write
// pump drains. All delivery to this connection funnels through TrySend,
// so a single writer goroutine preserves arrival order.
type Conn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newConn(c *websocket.Conn, buffer int) *Conn {
	return &Conn{
		conn: c,
		send: make(chan core.Frame, buffer),
	}
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}
