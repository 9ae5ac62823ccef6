package realtime

import (
	"log/slog"
	"sync"
)

// Presence maps each user id to the one session currently reachable for live delivery.
//
// Concurrency guarantees:
//   - Register/Lookup/Unregister are serialized by a single RWMutex.
//   - Handles are compared by pointer identity.
//   - A later Register replaces the entry without closing the previous session.
type Presence struct {
	log     *slog.Logger
	metrics *Metrics

	mu       sync.RWMutex
	sessions map[string]*Client
}

// NewPresence constructs an empty registry.
func NewPresence(log *slog.Logger, metrics *Metrics) *Presence {
	if log == nil {
		log = slog.Default()
	}
	return &Presence{
		log:      log,
		metrics:  metrics,
		sessions: make(map[string]*Client),
	}
}

// Register makes client the reachable session of userID and returns the session it
// replaced, if any. Registering the same client twice is a no-op.
func (p *Presence) Register(userID string, client *Client) *Client {
	if p == nil || userID == "" || client == nil {
		return nil
	}

	p.mu.Lock()
	prev := p.sessions[userID]
	p.sessions[userID] = client
	n := len(p.sessions)
	p.mu.Unlock()

	p.metrics.setSessions(n)

	if prev == client {
		return nil
	}
	if prev != nil {
		p.log.Info("presence.replace", "user_id", userID, "session_id", client.SessionID, "replaced_session_id", prev.SessionID)
		return prev
	}
	p.log.Info("presence.register", "user_id", userID, "session_id", client.SessionID)
	return nil
}

// Lookup returns the reachable session of userID. A miss means the user is offline.
func (p *Presence) Lookup(userID string) (*Client, bool) {
	if p == nil {
		return nil, false
	}
	p.mu.RLock()
	c, ok := p.sessions[userID]
	p.mu.RUnlock()
	return c, ok
}

// Unregister removes the entry of userID only while it still points at client.
// A superseded session disconnecting therefore never evicts its replacement.
func (p *Presence) Unregister(userID string, client *Client) bool {
	if p == nil || client == nil {
		return false
	}

	p.mu.Lock()
	cur, ok := p.sessions[userID]
	if !ok || cur != client {
		p.mu.Unlock()
		return false
	}
	delete(p.sessions, userID)
	n := len(p.sessions)
	p.mu.Unlock()

	p.metrics.setSessions(n)
	p.log.Info("presence.unregister", "user_id", userID, "session_id", client.SessionID)
	return true
}

// Len returns the number of reachable users.
func (p *Presence) Len() int {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// Online reports whether userID currently has a reachable session.
func (p *Presence) Online(userID string) bool {
	_, ok := p.Lookup(userID)
	return ok
}
