package realtime

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"unifree/cmd/identity"
	"unifree/cmd/internal/auth/session"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// fakeVerifier maps tokens to user ids.
type fakeVerifier map[string]string

func (f fakeVerifier) Verify(token string, _ time.Time) (session.AccessClaims, error) {
	uid, ok := f[token]
	if !ok {
		return session.AccessClaims{}, session.ErrInvalidToken
	}
	return session.AccessClaims{UserID: uid}, nil
}

type failingDirectory struct{}

func (failingDirectory) FindByID(context.Context, string) (identity.User, error) {
	return identity.User{}, errors.New("directory down")
}

func newTestGate(m *Metrics) *Gate {
	users := identity.NewMemoryDirectory(
		identity.User{ID: "u1", DisplayName: "alice"},
		identity.User{ID: "u2", DisplayName: "bob"},
	)
	tokens := fakeVerifier{
		"tok-u1":    "u1",
		"tok-u2":    "u2",
		"tok-ghost": "u404",
	}
	return NewGate(discardLogger(), tokens, users, m)
}

func TestGate_Admit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		hs         *Handshake
		wantReason string
	}{
		{name: "valid", hs: &Handshake{Token: "tok-u1", UserID: "u1", DisplayName: "alice"}},
		{name: "nil handshake", hs: nil, wantReason: rejectMissingHandshake},
		{name: "missing token", hs: &Handshake{UserID: "u1", DisplayName: "alice"}, wantReason: rejectMissingToken},
		{name: "invalid token", hs: &Handshake{Token: "garbage", UserID: "u1", DisplayName: "alice"}, wantReason: rejectInvalidToken},
		{name: "unknown user", hs: &Handshake{Token: "tok-ghost", UserID: "u404", DisplayName: "ghost"}, wantReason: rejectUnknownUser},
		{name: "claims another user", hs: &Handshake{Token: "tok-u1", UserID: "u2", DisplayName: "alice"}, wantReason: rejectUserMismatch},
		{name: "empty user id", hs: &Handshake{Token: "tok-u1", DisplayName: "alice"}, wantReason: rejectUserMismatch},
		{name: "display name mismatch", hs: &Handshake{Token: "tok-u1", UserID: "u1", DisplayName: "mallory"}, wantReason: rejectNameMismatch},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := require.New(t)
			g := newTestGate(nil)

			who, err := g.Admit(context.Background(), tc.hs)
			if tc.wantReason == "" {
				req.NoError(err)
				req.Equal(Identity{UserID: "u1", DisplayName: "alice"}, who)
				return
			}

			req.ErrorIs(err, ErrAuthInvalid)
			var ae AuthError
			req.True(errors.As(err, &ae))
			req.Equal(tc.wantReason, ae.Reason)
			req.Equal(Identity{}, who)
		})
	}
}

func TestGate_DirectoryFailureRejects(t *testing.T) {
	req := require.New(t)
	g := NewGate(discardLogger(), fakeVerifier{"tok": "u1"}, failingDirectory{}, nil)

	_, err := g.Admit(context.Background(), &Handshake{Token: "tok", UserID: "u1", DisplayName: "alice"})
	req.ErrorIs(err, ErrAuthInvalid)
	req.NotContains(ErrAuthInvalid.Error(), "directory")
}

func TestGate_CountsResults(t *testing.T) {
	req := require.New(t)
	m := NewMetrics(nil)
	g := newTestGate(m)

	_, _ = g.Admit(context.Background(), &Handshake{Token: "tok-u1", UserID: "u1", DisplayName: "alice"})
	_, _ = g.Admit(context.Background(), &Handshake{Token: "nope", UserID: "u1", DisplayName: "alice"})

	req.Equal(float64(1), testutil.ToFloat64(m.handshakes.WithLabelValues("admitted", "")))
	req.Equal(float64(1), testutil.ToFloat64(m.handshakes.WithLabelValues("rejected", rejectInvalidToken)))
}

func TestHandshakeFromRequest(t *testing.T) {
	t.Parallel()

	t.Run("bearer header and query identity", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws?user_id=u1&display_name=alice", nil)
		r.Header.Set("Authorization", "BEARER tok-u1")
		require.Equal(t, &Handshake{Token: "tok-u1", UserID: "u1", DisplayName: "alice"}, HandshakeFromRequest(r))
	})

	t.Run("query token and headers", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws?token=tok-u2", nil)
		r.Header.Set("X-User-ID", "u2")
		r.Header.Set("X-Display-Name", "bob")
		require.Equal(t, &Handshake{Token: "tok-u2", UserID: "u2", DisplayName: "bob"}, HandshakeFromRequest(r))
	})

	t.Run("username alias", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws?token=t&user_id=u1&username=alice", nil)
		require.Equal(t, "alice", HandshakeFromRequest(r).DisplayName)
	})

	t.Run("non bearer scheme ignored", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws?user_id=u1", nil)
		r.Header.Set("Authorization", "Basic abc")
		require.Equal(t, "", HandshakeFromRequest(r).Token)
	})

	t.Run("claimed identity kept verbatim", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws?token=t&user_id=u1&display_name=%20alice%20", nil)
		require.Equal(t, &Handshake{Token: "t", UserID: "u1", DisplayName: " alice "}, HandshakeFromRequest(r))
	})

	t.Run("absent", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		require.Nil(t, HandshakeFromRequest(r))
	})
}

func TestGate_ComparesClaimedIdentityExactly(t *testing.T) {
	t.Parallel()

	users := identity.NewMemoryDirectory(identity.User{ID: "u1", DisplayName: " alice "})
	g := NewGate(discardLogger(), fakeVerifier{"tok-u1": "u1"}, users, nil)

	who, err := g.Admit(context.Background(), &Handshake{Token: "tok-u1", UserID: "u1", DisplayName: " alice "})
	require.NoError(t, err)
	require.Equal(t, " alice ", who.DisplayName)

	_, err = g.Admit(context.Background(), &Handshake{Token: "tok-u1", UserID: "u1", DisplayName: "alice"})
	var ae AuthError
	require.True(t, errors.As(err, &ae))
	require.Equal(t, rejectNameMismatch, ae.Reason)

	_, err = g.Admit(context.Background(), &Handshake{Token: "tok-u1", UserID: " u1", DisplayName: " alice "})
	require.True(t, errors.As(err, &ae))
	require.Equal(t, rejectUserMismatch, ae.Reason)
}
