package realtime

import (
	"sync"

	v1 "beacon/contracts/chat/v1"
)

// Conn is the live connection handle registered for one attached session.
//
// Design notes:
// - Send is intentionally NOT closed by the server to avoid panics from concurrent broadcasters.
// - done signals the owning session's goroutines to stop.
// - Close is idempotent.
type Conn struct {
	ID       string
	Identity string
	Send     chan v1.Event

	done      chan struct{}
	closeOnce sync.Once
}

// NewConn constructs a Conn with a bounded send queue.
func NewConn(identity string, sendQueueSize int) *Conn {
	if sendQueueSize <= 0 {
		sendQueueSize = defaultSendQueueSize
	}
	return &Conn{
		ID:       NewConnID(),
		Identity: identity,
		Send:     make(chan v1.Event, sendQueueSize),
		done:     make(chan struct{}),
	}
}

// Done returns a channel closed when the connection is shutting down.
func (c *Conn) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// TrySend enqueues an event without blocking. It reports false when the
// connection is shutting down or the queue is full; the caller treats that
// as a delivery failure for this recipient only.
func (c *Conn) TrySend(ev v1.Event) bool {
	if c == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- ev:
		return true
	default:
		return false
	}
}

// Close signals shutdown (idempotent). It does NOT close Send so that
// concurrent broadcasters never write to a closed channel.
func (c *Conn) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
