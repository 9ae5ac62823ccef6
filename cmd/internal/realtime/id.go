package realtime

import (
	"time"

	"unifree/cmd/identity/ids"

	"github.com/google/uuid"
)

// NewSessionID returns a random id for one websocket session.
func NewSessionID() string {
	return uuid.NewString()
}

// NewEnvelopeID returns a ULID used as envelope id, so ids sort in emission order in logs.
func NewEnvelopeID(now time.Time) string {
	id, err := ids.NewULID(now)
	if err != nil {
		return uuid.NewString()
	}
	return id
}

// NewMessageID returns the id assigned to a message at persistence time.
func NewMessageID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
