package realtime

import (
	"sync"

	v1 "unifree/shared/contracts/messaging/v1"
)

// Client is the handle of one admitted websocket session.
//
// Design notes:
//   - Send is never closed by the server, so concurrent Deliver calls cannot panic.
//   - done signals the session goroutines to stop; Close is idempotent.
//   - Identity fields are captured at handshake time and never re-verified.
type Client struct {
	SessionID   string
	UserID      string
	DisplayName string
	Send        chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(sessionID, userID, displayName string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		SessionID:   sessionID,
		UserID:      userID,
		DisplayName: displayName,
		Send:        make(chan v1.Envelope, sendQueueSize),
		done:        make(chan struct{}),
	}
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop (idempotent).
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Deliver enqueues env without blocking.
// It reports false when the client is shutting down or its queue is full.
func (c *Client) Deliver(env v1.Envelope) bool {
	if c == nil {
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.Send <- env:
		return true
	default:
		return false
	}
}
