package tcpd

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"relaychat/wire"
)

const sendBuffer = 32

// How long Close waits for queued frames to flush before cutting the
// socket.
const closeGrace = 3 * time.Second

// The error returned when sending on a connection that is already closed.
var ErrConnClosed = errors.New("connection closed")

// Conn wraps a net.Conn with the wire framing and a bounded outbound queue.
// Reads happen on the session goroutine; writes are drained by a dedicated
// writer goroutine so a slow peer never stalls a room broadcast. When the
// queue overflows the connection is closed, matching how a dead peer is
// treated elsewhere.
type Conn struct {
	id   string
	conn net.Conn
	dec  *wire.Decoder
	enc  *wire.Encoder

	// Zero means reads block forever; see Server.IdleTimeout.
	idleTimeout time.Duration

	mu        sync.RWMutex
	out       chan *wire.Payload
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewConn wraps conn and starts its writer goroutine.
func NewConn(conn net.Conn, idleTimeout time.Duration) *Conn {
	c := &Conn{
		id:          uuid.NewString(),
		conn:        conn,
		dec:         wire.NewDecoder(conn),
		enc:         wire.NewEncoder(conn),
		idleTimeout: idleTimeout,
		out:         make(chan *wire.Payload, sendBuffer),
		done:        make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// ID returns the connection's identifier, used for log correlation.
func (c *Conn) ID() string {
	return c.id
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// ReadPayload blocks until one whole frame arrives or the stream ends.
func (c *Conn) ReadPayload() (*wire.Payload, error) {
	if c.idleTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	}
	return c.dec.Decode()
}

// Send queues p for delivery. Never blocks: a full queue means the peer
// stopped draining, so the connection is closed instead.
func (c *Conn) Send(p *wire.Payload) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.out <- p:
		return nil
	default:
		logger.Printf("[%s] send queue full, closing", c.id)
		go c.Close()
		return ErrConnClosed
	}
}

func (c *Conn) writeLoop() {
	defer close(c.done)
	for p := range c.out {
		if err := c.enc.Encode(p); err != nil {
			logger.Printf("[%s] write failed: %s", c.id, err)
			go c.Close()
			for range c.out {
				// Discard whatever is still queued.
			}
			return
		}
	}
}

// Close shuts the connection down. Queued frames get a short grace window
// to flush, so a final error or shutdown notice is not lost. Safe to call
// more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.out)
		c.mu.Unlock()
		c.conn.SetWriteDeadline(time.Now().Add(closeGrace))
	})
	<-c.done
	return c.conn.Close()
}
