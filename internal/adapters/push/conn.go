package push

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dkeye/charge/internal/app"
)

var ErrBackpressure = errors.New("backpressure")

// wsConn wraps a websocket with a buffered outbound queue. It implements
// app.Conn; TrySend never blocks, a full queue is the subscriber's problem.
type wsConn struct {
	conn *websocket.Conn
	send chan app.Frame

	mu     sync.RWMutex
	closed bool
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		conn: ws,
		send: make(chan app.Frame, 32),
	}
}

func (c *wsConn) TrySend(f app.Frame) error {
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

func (c *wsConn) Close() {
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
