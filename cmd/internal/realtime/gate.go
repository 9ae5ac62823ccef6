package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"unifree/cmd/identity"
	"unifree/cmd/internal/auth/session"
)

// Handshake is the authentication payload presented with an upgrade request.
type Handshake struct {
	Token       string
	UserID      string
	DisplayName string
}

// Identity is the verified identity bound to an admitted session.
type Identity struct {
	UserID      string
	DisplayName string
}

// TokenVerifier is the subset of session.AccessTokenManager the gate needs.
type TokenVerifier interface {
	Verify(token string, now time.Time) (session.AccessClaims, error)
}

// Rejection reasons (logs and metrics only).
const (
	rejectMissingHandshake = "missing_handshake"
	rejectMissingToken     = "missing_token"
	rejectInvalidToken     = "invalid_token"
	rejectUnknownUser      = "unknown_user"
	rejectDirectoryError   = "directory_error"
	rejectUserMismatch     = "user_id_mismatch"
	rejectNameMismatch     = "display_name_mismatch"
)

// Gate admits or rejects a handshake before any session state exists.
// It never touches presence.
type Gate struct {
	log     *slog.Logger
	tokens  TokenVerifier
	users   identity.Directory
	metrics *Metrics
	now     func() time.Time
}

// NewGate constructs a Gate.
func NewGate(log *slog.Logger, tokens TokenVerifier, users identity.Directory, metrics *Metrics) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{
		log:     log,
		tokens:  tokens,
		users:   users,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Admit verifies the token, resolves its user and cross-checks the claimed identity.
// Every failure is an AuthError unwrapping to ErrAuthInvalid.
func (g *Gate) Admit(ctx context.Context, hs *Handshake) (Identity, error) {
	if hs == nil {
		return Identity{}, g.reject(rejectMissingHandshake, nil)
	}
	token := strings.TrimSpace(hs.Token)
	if token == "" {
		return Identity{}, g.reject(rejectMissingToken, nil)
	}

	claims, err := g.tokens.Verify(token, g.now())
	if err != nil {
		return Identity{}, g.reject(rejectInvalidToken, err)
	}

	u, err := g.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			return Identity{}, g.reject(rejectUnknownUser, nil)
		}
		return Identity{}, g.reject(rejectDirectoryError, err)
	}

	if u.ID != hs.UserID {
		return Identity{}, g.reject(rejectUserMismatch, nil)
	}
	if u.DisplayName != hs.DisplayName {
		return Identity{}, g.reject(rejectNameMismatch, nil)
	}

	g.metrics.handshake("admitted", "")
	return Identity{UserID: u.ID, DisplayName: u.DisplayName}, nil
}

func (g *Gate) reject(reason string, cause error) error {
	g.metrics.handshake("rejected", reason)
	if cause != nil {
		g.log.Info("gate.reject", "reason", reason, "err", cause)
	} else {
		g.log.Info("gate.reject", "reason", reason)
	}
	return AuthError{Reason: reason}
}

// HandshakeFromRequest extracts the handshake from an upgrade request.
//
// Token: "Authorization: Bearer <t>" header, else the "token" query parameter.
// User id: "user_id" query parameter, else the X-User-ID header.
// Display name: "display_name" (or "username") query parameter, else the X-Display-Name header.
// It returns nil when the request carries none of them.
func HandshakeFromRequest(r *http.Request) *Handshake {
	if r == nil {
		return nil
	}
	q := r.URL.Query()

	// Claimed ids and names are kept verbatim: the gate compares them exactly.
	hs := &Handshake{
		Token:       bearerToken(r.Header.Get("Authorization")),
		UserID:      q.Get("user_id"),
		DisplayName: q.Get("display_name"),
	}
	if hs.Token == "" {
		hs.Token = strings.TrimSpace(q.Get("token"))
	}
	if hs.UserID == "" {
		hs.UserID = r.Header.Get("X-User-ID")
	}
	if hs.DisplayName == "" {
		hs.DisplayName = q.Get("username")
	}
	if hs.DisplayName == "" {
		hs.DisplayName = r.Header.Get("X-Display-Name")
	}

	if hs.Token == "" && hs.UserID == "" && hs.DisplayName == "" {
		return nil
	}
	return hs
}

func bearerToken(h string) string {
	h = strings.TrimSpace(h)
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
