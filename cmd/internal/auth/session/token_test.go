package session

import (
	"strings"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/golang-jwt/jwt/v5"
)

func newPasetoManager(t *testing.T, ttl time.Duration) AccessTokenManager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.AccessTokenTTL = ttl
	cfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()

	mgr, err := NewAccessTokenManager(cfg)
	if err != nil {
		t.Fatalf("NewAccessTokenManager: %v", err)
	}
	return mgr
}

func newJWTManager(t *testing.T, secret string, ttl time.Duration) AccessTokenManager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Format = FormatJWT
	cfg.AccessTokenTTL = ttl
	cfg.JWTSecret = secret

	mgr, err := NewAccessTokenManager(cfg)
	if err != nil {
		t.Fatalf("NewAccessTokenManager: %v", err)
	}
	return mgr
}

func TestPasetoV4_IssueAndVerify(t *testing.T) {
	t.Parallel()

	mgr := newPasetoManager(t, 15*time.Minute)

	now := time.Now().UTC()
	tok, exp, err := mgr.Issue("u1", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.After(now) {
		t.Fatalf("expected exp after now")
	}

	claims, err := mgr.Verify(tok, now.Add(1*time.Second))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "u1" {
		t.Fatalf("user id=%q", claims.UserID)
	}
}

func TestPasetoV4_RejectsExpiredAndForeignKeys(t *testing.T) {
	t.Parallel()

	mgr := newPasetoManager(t, 1*time.Minute)
	other := newPasetoManager(t, 1*time.Minute)

	now := time.Now().UTC()
	tok, _, err := mgr.Issue("u1", now.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := mgr.Verify(tok, now); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}

	fresh, _, err := other.Issue("u1", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := mgr.Verify(fresh, now); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for foreign key, got %v", err)
	}

	for _, bad := range []string{"", "   ", "v4.public.garbage", "not-a-token"} {
		if _, err := mgr.Verify(bad, now); err != ErrInvalidToken {
			t.Fatalf("Verify(%q): expected ErrInvalidToken, got %v", bad, err)
		}
	}
}

func TestJWT_IssueAndVerify(t *testing.T) {
	t.Parallel()

	mgr := newJWTManager(t, strings.Repeat("s", 32), 15*time.Minute)

	now := time.Now().UTC()
	tok, _, err := mgr.Issue("u2", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := mgr.Verify(tok, now)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "u2" {
		t.Fatalf("user id=%q", claims.UserID)
	}
}

func TestJWT_AcceptsLoginTokenWithoutExpiry(t *testing.T) {
	t.Parallel()

	secret := strings.Repeat("s", 32)
	mgr := newJWTManager(t, secret, 15*time.Minute)

	// Shape issued by the marketplace login endpoint.
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": "alice_the_trader",
		"id":       "u1",
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := mgr.Verify(tok, time.Now())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "u1" {
		t.Fatalf("user id=%q", claims.UserID)
	}
}

func TestJWT_Rejections(t *testing.T) {
	t.Parallel()

	secret := strings.Repeat("s", 32)
	mgr := newJWTManager(t, secret, 1*time.Minute)
	now := time.Now().UTC()

	expired, _, err := mgr.Issue("u1", now.Add(-1*time.Hour))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": "u1"}).
		SignedString([]byte(strings.Repeat("x", 32)))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	noID, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"username": "alice"}).
		SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"id": "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	cases := map[string]string{
		"expired":   expired,
		"wrong key": wrongKey,
		"no id":     noID,
		"unsigned":  unsigned,
		"malformed": "a.b.c",
		"empty":     "",
	}
	for name, tok := range cases {
		if _, err := mgr.Verify(tok, now); err != ErrInvalidToken {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestNewAccessTokenManager_BadConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = "zz"
	if _, err := NewAccessTokenManager(cfg); err != ErrConfig {
		t.Fatalf("expected ErrConfig for bad paseto key, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.Format = FormatJWT
	if _, err := NewAccessTokenManager(cfg); err != ErrConfig {
		t.Fatalf("expected ErrConfig for empty jwt secret, got %v", err)
	}

	cfg.Format = "saml"
	if _, err := NewAccessTokenManager(cfg); err != ErrConfig {
		t.Fatalf("expected ErrConfig for unknown format, got %v", err)
	}
}

func TestPasetoV4_VerifyOnlyManager(t *testing.T) {
	t.Parallel()

	secret := paseto.NewV4AsymmetricSecretKey()

	issuerCfg := DefaultConfig()
	issuerCfg.PasetoV4SecretKeyHex = secret.ExportHex()
	issuer, err := NewAccessTokenManager(issuerCfg)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	verifierCfg := DefaultConfig()
	verifierCfg.PasetoV4PublicKeyHex = secret.Public().ExportHex()
	verifier, err := NewAccessTokenManager(verifierCfg)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	now := time.Now().UTC()
	tok, _, err := issuer.Issue("u7", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := verifier.Verify(tok, now)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "u7" || claims.Issuer != issuerCfg.Issuer {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, _, err := verifier.Issue("u7", now); err != ErrVerifyOnly {
		t.Fatalf("expected ErrVerifyOnly, got %v", err)
	}
}
