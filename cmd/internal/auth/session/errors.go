package session

import "errors"

var (
	// ErrInvalidToken is returned when an access token fails verification.
	// The reason is never surfaced to clients.
	ErrInvalidToken = errors.New("invalid token")

	// ErrConfig is returned for invalid token configuration.
	ErrConfig = errors.New("invalid config")

	// ErrVerifyOnly is returned by Issue on a manager configured with a public key only.
	ErrVerifyOnly = errors.New("token manager is verify-only")
)
