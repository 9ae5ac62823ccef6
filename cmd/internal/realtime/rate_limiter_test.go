package realtime

import (
	"testing"
	"time"
)

func TestInboundLimiter_SlidingWindow(t *testing.T) {
	l := newInboundLimiter(3, time.Second)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if !l.allow(base.Add(time.Duration(i) * 100 * time.Millisecond)) {
			t.Fatalf("event %d should be allowed", i)
		}
	}
	if l.allow(base.Add(300 * time.Millisecond)) {
		t.Fatalf("fourth event inside the window must be rejected")
	}
	// The first event leaves the window.
	if !l.allow(base.Add(1050 * time.Millisecond)) {
		t.Fatalf("event after the window slid should be allowed")
	}
	// The 100ms event is now the oldest and still inside the window.
	if l.allow(base.Add(1080 * time.Millisecond)) {
		t.Fatalf("event must wait for the 100ms event to age out")
	}
	if !l.allow(base.Add(1100 * time.Millisecond)) {
		t.Fatalf("event exactly one window after the oldest should be allowed")
	}
}

func TestInboundLimiter_RejectedEventsDoNotCount(t *testing.T) {
	l := newInboundLimiter(1, time.Second)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if !l.allow(base) {
		t.Fatal("first event should be allowed")
	}
	for i := 1; i <= 5; i++ {
		if l.allow(base.Add(time.Duration(i) * 100 * time.Millisecond)) {
			t.Fatalf("event %d should be rejected", i)
		}
	}
	if !l.allow(base.Add(time.Second)) {
		t.Fatal("rejected events must not extend the window")
	}
}

func TestInboundLimiter_Defaults(t *testing.T) {
	l := newInboundLimiter(0, 0)
	if l.limit() != rateLimitEvents || l.window != rateLimitWindow {
		t.Fatalf("unexpected defaults: limit=%d window=%s", l.limit(), l.window)
	}
}
