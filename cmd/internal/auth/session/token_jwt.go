package session

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwtClaims mirrors the login endpoint's token body: {"id": ..., "username": ...}.
type jwtClaims struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

type jwtManager struct {
	secret    []byte
	ttl       time.Duration
	clockSkew time.Duration
}

// NewJWTManager builds an HS256 AccessTokenManager.
// Tokens without "exp" are accepted; tokens with an "exp" in the past are not.
func NewJWTManager(cfg Config) (AccessTokenManager, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, ErrConfig
	}
	return &jwtManager{
		secret:    []byte(cfg.JWTSecret),
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
	}, nil
}

func (m *jwtManager) Issue(userID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.ttl)
	claims := &jwtClaims{
		ID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (m *jwtManager) Verify(token string, now time.Time) (AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return AccessClaims{}, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{},
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(m.clockSkew),
	)
	if err != nil || !parsed.Valid {
		return AccessClaims{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok || strings.TrimSpace(claims.ID) == "" {
		return AccessClaims{}, ErrInvalidToken
	}

	out := AccessClaims{UserID: claims.ID, Issuer: claims.Issuer}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
