package session

import (
	"os"
	"strings"
	"time"
)

// Token formats accepted by UNIFREE_TOKEN_FORMAT.
const (
	FormatPaseto = "paseto"
	FormatJWT    = "jwt"
)

// Config defines runtime configuration for access-token verification.
type Config struct {
	// Format selects the token family: FormatPaseto or FormatJWT.
	Format string

	// Issuer is the value set in (and required of) the "iss" claim of PASETO tokens.
	Issuer string

	// AccessTokenTTL is the lifetime of tokens minted by Issue.
	AccessTokenTTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// PasetoV4SecretKeyHex is the hex-encoded Ed25519 secret key for v4.public tokens.
	PasetoV4SecretKeyHex string

	// PasetoV4PublicKeyHex verifies v4.public tokens when no secret key is configured.
	PasetoV4PublicKeyHex string

	// JWTSecret is the HS256 shared secret.
	JWTSecret string
}

// DefaultConfig returns defaults suitable for development.
func DefaultConfig() Config {
	return Config{
		Format:         FormatPaseto,
		Issuer:         "unifree",
		AccessTokenTTL: 15 * time.Minute,
		ClockSkew:      30 * time.Second,
	}
}

// LoadConfigFromEnv loads token configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - UNIFREE_TOKEN_FORMAT (paseto|jwt; defaults to jwt when only a JWT secret is set)
//   - UNIFREE_AUTH_ISSUER
//   - UNIFREE_AUTH_ACCESS_TTL
//   - UNIFREE_AUTH_CLOCK_SKEW
//
// Keys (one is required, matching the format):
//   - UNIFREE_PASETO_V4_SECRET_KEY_HEX, or UNIFREE_PASETO_V4_PUBLIC_KEY_HEX for verify-only
//   - UNIFREE_SECRET_KEY (falls back to SECRET_KEY)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	cfg.PasetoV4SecretKeyHex = strings.TrimSpace(os.Getenv("UNIFREE_PASETO_V4_SECRET_KEY_HEX"))
	cfg.PasetoV4PublicKeyHex = strings.TrimSpace(os.Getenv("UNIFREE_PASETO_V4_PUBLIC_KEY_HEX"))
	cfg.JWTSecret = strings.TrimSpace(os.Getenv("UNIFREE_SECRET_KEY"))
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = strings.TrimSpace(os.Getenv("SECRET_KEY"))
	}

	switch f := strings.ToLower(strings.TrimSpace(os.Getenv("UNIFREE_TOKEN_FORMAT"))); f {
	case "":
		if cfg.PasetoV4SecretKeyHex == "" && cfg.PasetoV4PublicKeyHex == "" && cfg.JWTSecret != "" {
			cfg.Format = FormatJWT
		}
	case FormatPaseto, FormatJWT:
		cfg.Format = f
	default:
		return Config{}, ErrConfig
	}

	if v := os.Getenv("UNIFREE_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("UNIFREE_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("UNIFREE_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	switch cfg.Format {
	case FormatPaseto:
		if cfg.PasetoV4SecretKeyHex == "" && cfg.PasetoV4PublicKeyHex == "" {
			return Config{}, ErrConfig
		}
	case FormatJWT:
		// HS256 secrets shorter than the hash output are brute-forceable.
		if len(cfg.JWTSecret) < 32 {
			return Config{}, ErrConfig
		}
	}

	return cfg, nil
}
