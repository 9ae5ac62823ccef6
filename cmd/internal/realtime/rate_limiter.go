package realtime

import "time"

// inboundLimiter caps the events one session may send within a sliding window.
//
// It keeps the timestamps of the last limit accepted events in a ring. An event is admitted
// when the ring has room or when the oldest accepted event has aged out of the window.
// Only the session's read loop touches it, so it carries no lock.
type inboundLimiter struct {
	window time.Duration
	ring   []time.Time
	head   int // index of the oldest accepted event once the ring is full
	n      int
}

func newInboundLimiter(limit int, window time.Duration) *inboundLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &inboundLimiter{
		window: window,
		ring:   make([]time.Time, limit),
	}
}

// allow records an event at now and reports whether it fits the budget.
// Rejected events are not recorded.
func (l *inboundLimiter) allow(now time.Time) bool {
	if l.n < len(l.ring) {
		l.ring[(l.head+l.n)%len(l.ring)] = now
		l.n++
		return true
	}

	if now.Sub(l.ring[l.head]) < l.window {
		return false
	}
	l.ring[l.head] = now
	l.head = (l.head + 1) % len(l.ring)
	return true
}

func (l *inboundLimiter) limit() int { return len(l.ring) }
