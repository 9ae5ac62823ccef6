package session

import (
	"strings"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

func clearTokenEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"UNIFREE_TOKEN_FORMAT",
		"UNIFREE_PASETO_V4_SECRET_KEY_HEX",
		"UNIFREE_PASETO_V4_PUBLIC_KEY_HEX",
		"UNIFREE_SECRET_KEY",
		"SECRET_KEY",
		"UNIFREE_AUTH_ISSUER",
		"UNIFREE_AUTH_ACCESS_TTL",
		"UNIFREE_AUTH_CLOCK_SKEW",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigFromEnv_MissingKeys(t *testing.T) {
	clearTokenEnv(t)
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig on missing keys, got %v", err)
	}
}

func TestLoadConfigFromEnv_UnknownFormat(t *testing.T) {
	clearTokenEnv(t)
	t.Setenv("UNIFREE_TOKEN_FORMAT", "saml")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig for unknown format, got %v", err)
	}
}

func TestLoadConfigFromEnv_InvalidDurations(t *testing.T) {
	clearTokenEnv(t)
	secret := paseto.NewV4AsymmetricSecretKey()
	t.Setenv("UNIFREE_PASETO_V4_SECRET_KEY_HEX", secret.ExportHex())
	t.Setenv("UNIFREE_AUTH_ACCESS_TTL", "-5m")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig for negative duration, got %v", err)
	}
}

func TestLoadConfigFromEnv_ShortJWTSecret(t *testing.T) {
	clearTokenEnv(t)
	t.Setenv("UNIFREE_TOKEN_FORMAT", "jwt")
	t.Setenv("UNIFREE_SECRET_KEY", "short")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig for short secret, got %v", err)
	}
}

func TestLoadConfigFromEnv_JWTInferredFromLegacySecret(t *testing.T) {
	clearTokenEnv(t)
	t.Setenv("SECRET_KEY", strings.Repeat("k", 40))

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Format != FormatJWT {
		t.Fatalf("format=%q want %q", cfg.Format, FormatJWT)
	}
	if cfg.JWTSecret != strings.Repeat("k", 40) {
		t.Fatalf("secret not taken from SECRET_KEY")
	}
}

func TestLoadConfigFromEnv_Valid(t *testing.T) {
	clearTokenEnv(t)
	secret := paseto.NewV4AsymmetricSecretKey()
	t.Setenv("UNIFREE_PASETO_V4_SECRET_KEY_HEX", secret.ExportHex())
	t.Setenv("UNIFREE_AUTH_ISSUER", "unifree-test")
	t.Setenv("UNIFREE_AUTH_ACCESS_TTL", "10m")
	t.Setenv("UNIFREE_AUTH_CLOCK_SKEW", "20s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Format != FormatPaseto {
		t.Fatalf("format mismatch: %q", cfg.Format)
	}
	if cfg.Issuer != "unifree-test" {
		t.Fatalf("issuer mismatch: %q", cfg.Issuer)
	}
	if cfg.AccessTokenTTL != 10*time.Minute {
		t.Fatalf("access ttl mismatch: %v", cfg.AccessTokenTTL)
	}
	if cfg.ClockSkew != 20*time.Second {
		t.Fatalf("clock skew mismatch: %v", cfg.ClockSkew)
	}
}

func TestLoadConfigFromEnv_PublicKeyOnly(t *testing.T) {
	clearTokenEnv(t)
	secret := paseto.NewV4AsymmetricSecretKey()
	t.Setenv("UNIFREE_PASETO_V4_PUBLIC_KEY_HEX", secret.Public().ExportHex())
	// A JWT secret alone would select jwt; a paseto key keeps the paseto default.
	t.Setenv("UNIFREE_SECRET_KEY", strings.Repeat("k", 40))

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.Format != FormatPaseto {
		t.Fatalf("format=%q want %q", cfg.Format, FormatPaseto)
	}
	if cfg.PasetoV4PublicKeyHex == "" || cfg.PasetoV4SecretKeyHex != "" {
		t.Fatalf("unexpected keys: %+v", cfg)
	}
}
