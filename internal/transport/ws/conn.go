package ws

import (
	"sync"
	"time"

	"github.com/moodlink/realtime-service/internal/domain"

	"github.com/gorilla/websocket"
)

// wsConn wraps one websocket connection with a bounded outbound queue.
// The dispatcher enqueues without blocking; the write pump drains. A full
// queue or a closed connection turns a send into an immediate error so a
// stalled client never stalls fan-out for the rest of its room.
type wsConn struct {
	conn  *websocket.Conn
	queue chan []byte

	writeWait time.Duration

	closed    chan struct{}
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn, queueSize int, writeWait time.Duration) *wsConn {
	if queueSize <= 0 {
		queueSize = 32
	}
	if writeWait <= 0 {
		writeWait = 5 * time.Second
	}
	return &wsConn{
		conn:      conn,
		queue:     make(chan []byte, queueSize),
		writeWait: writeWait,
		closed:    make(chan struct{}),
	}
}

// Send enqueues one outbound payload. Never blocks.
func (c *wsConn) Send(payload []byte) error {
	select {
	case <-c.closed:
		return domain.ErrConnClosed
	default:
	}

	select {
	case c.queue <- payload:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Close is idempotent; both the read loop and the write pump call it on
// their way out.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.conn.Close()
}

// writePump owns all writes on the underlying connection: queued payloads
// and keepalive pings. Any write error tears the connection down, which
// unblocks the read loop.
func (c *wsConn) writePump(pingEvery time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case payload := <-c.queue:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait)); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
