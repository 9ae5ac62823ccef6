package realtime

import "errors"

var (
	// ErrAuthInvalid rejects a handshake. The reason is never shown to the client.
	ErrAuthInvalid = errors.New("authentication failed")

	// ErrPersistence reports that the message store was unavailable or refused a write.
	ErrPersistence = errors.New("message persistence failed")

	// ErrInvalidMessage reports a send or mark-read event with missing or oversized fields.
	ErrInvalidMessage = errors.New("invalid message")
)

// AuthError carries the server-side reason of a rejected handshake.
// It unwraps to ErrAuthInvalid; only the sentinel is observable by clients.
type AuthError struct {
	Reason string
}

func (e AuthError) Error() string {
	if e.Reason == "" {
		return ErrAuthInvalid.Error()
	}
	return ErrAuthInvalid.Error() + ": " + e.Reason
}

func (e AuthError) Unwrap() error { return ErrAuthInvalid }
