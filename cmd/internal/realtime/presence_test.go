package realtime

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(userID string) *Client {
	return NewClient(NewSessionID(), userID, userID+"-name", 8)
}

func TestPresence_RegisterLookup(t *testing.T) {
	req := require.New(t)
	p := NewPresence(discardLogger(), nil)

	_, ok := p.Lookup("alice")
	req.False(ok)
	req.False(p.Online("alice"))

	a := newTestClient("alice")
	req.Nil(p.Register("alice", a))

	got, ok := p.Lookup("alice")
	req.True(ok)
	req.Same(a, got)
	req.True(p.Online("alice"))
	req.Equal(1, p.Len())
}

func TestPresence_LastConnectedWins(t *testing.T) {
	req := require.New(t)
	p := NewPresence(discardLogger(), nil)

	first := newTestClient("alice")
	second := newTestClient("alice")

	p.Register("alice", first)
	replaced := p.Register("alice", second)
	req.Same(first, replaced)

	got, ok := p.Lookup("alice")
	req.True(ok)
	req.Same(second, got)
	req.Equal(1, p.Len())

	// The superseded session is not closed by the registry.
	select {
	case <-first.Done():
		t.Fatal("superseded session must stay open")
	default:
	}
}

func TestPresence_RegisterSameClientTwice(t *testing.T) {
	req := require.New(t)
	p := NewPresence(discardLogger(), nil)

	a := newTestClient("alice")
	p.Register("alice", a)
	req.Nil(p.Register("alice", a))
	req.Equal(1, p.Len())
}

func TestPresence_UnregisterIsGuarded(t *testing.T) {
	req := require.New(t)
	p := NewPresence(discardLogger(), nil)

	stale := newTestClient("alice")
	fresh := newTestClient("alice")
	p.Register("alice", stale)
	p.Register("alice", fresh)

	// The stale session disconnecting must not evict the newer one.
	req.False(p.Unregister("alice", stale))
	got, ok := p.Lookup("alice")
	req.True(ok)
	req.Same(fresh, got)

	req.True(p.Unregister("alice", fresh))
	_, ok = p.Lookup("alice")
	req.False(ok)
	req.Equal(0, p.Len())

	// Unknown user: no-op.
	req.False(p.Unregister("bob", fresh))
}

func TestPresence_ConcurrentRegisterUnregister(t *testing.T) {
	req := require.New(t)
	p := NewPresence(discardLogger(), nil)

	const users = 32
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := "user-" + string(rune('a'+i%26)) + string(rune('A'+i/26))
			c := newTestClient(userID)
			p.Register(userID, c)
			_, _ = p.Lookup(userID)
			p.Unregister(userID, c)
		}(i)
	}
	wg.Wait()

	req.Equal(0, p.Len())
}

func TestPresence_SessionsGauge(t *testing.T) {
	req := require.New(t)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	p := NewPresence(discardLogger(), m)

	a := newTestClient("alice")
	b := newTestClient("bob")
	p.Register("alice", a)
	p.Register("bob", b)
	req.Equal(float64(2), testutil.ToFloat64(m.sessions))

	p.Unregister("alice", a)
	req.Equal(float64(1), testutil.ToFloat64(m.sessions))
}
