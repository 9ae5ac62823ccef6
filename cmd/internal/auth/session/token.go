package session

import "time"

// AccessClaims is the minimal identity envelope carried by an access token.
type AccessClaims struct {
	UserID    string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Issuer    string
}

// AccessTokenManager issues and verifies access tokens.
//
// Verify returns ErrInvalidToken when the token is malformed, badly signed,
// expired, or carries no user id.
type AccessTokenManager interface {
	Issue(userID string, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (AccessClaims, error)
}

// NewAccessTokenManager builds the manager selected by cfg.Format.
func NewAccessTokenManager(cfg Config) (AccessTokenManager, error) {
	switch cfg.Format {
	case FormatPaseto, "":
		return NewPasetoV4PublicManager(cfg)
	case FormatJWT:
		return NewJWTManager(cfg)
	default:
		return nil, ErrConfig
	}
}
