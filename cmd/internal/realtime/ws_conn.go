package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// errConnClosed is returned by Send after the connection has shut down.
var errConnClosed = errors.New("connection closed")

// wsConn adapts a websocket connection to Conn.
//
// Design notes:
//   - send is never closed, so concurrent senders cannot panic.
//   - A single writer goroutine drains send, which keeps frames of one
//     connection serialized.
//   - done signals shutdown; Close is idempotent.
type wsConn struct {
	id   string
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(id string, queueSize int) *wsConn {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &wsConn{
		id:   id,
		send: make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

// Send encodes msg and queues it, waiting for queue space until ctx expires.
func (c *wsConn) Send(ctx context.Context, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return errConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the connection shuts down.
func (c *wsConn) Done() <-chan struct{} { return c.done }

// Close signals shutdown (idempotent). It does NOT close send.
func (c *wsConn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writeLoop drains the queue onto the socket until shutdown or a write error.
func (c *wsConn) writeLoop(ctx context.Context, conn *websocket.Conn, timeout time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case b := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, timeout)
			err := conn.Write(wctx, websocket.MessageText, b)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
