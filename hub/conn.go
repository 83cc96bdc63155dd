package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Errors returned by conn.Send. Both are treated as per-recipient delivery
// failures by the broadcast loop: logged, never propagated.
var (
	errConnClosed     = errors.New("hub: connection closed")
	errSendBufferFull = errors.New("hub: send buffer full")
)

// conn wraps one WebSocket connection with a buffered outgoing queue. It is
// the transport handle stored in the registry entry; the registry entry is
// its only owner.
type conn struct {
	sock *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newConn(sock *websocket.Conn, bufSize int) *conn {
	return &conn{
		sock: sock,
		send: make(chan []byte, bufSize),
	}
}

// Send enqueues data for delivery. It never blocks: a full buffer is a
// delivery failure for this message, not a reason to stall the broadcast
// loop on a slow peer.
func (c *conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// isClosed reports whether the hub has shut this connection's queue.
func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// close shuts the outgoing queue. Safe to call more than once.
func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump drains the outgoing queue onto the socket and sends periodic
// ping frames. Runs in its own goroutine per connection; exits when the
// queue is closed or a write fails.
func (c *conn) writePump(pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.sock.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub shutting down")) //nolint:errcheck
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
