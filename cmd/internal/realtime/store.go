package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Message is the canonical persisted private message.
type Message struct {
	ID              string
	SentAt          time.Time
	SenderID        string
	RecipientID     string
	Content         string
	ReadByRecipient bool
	ReadBySender    bool

	// SenderName and RecipientName are display names resolved from the user directory
	// when a message is handed to clients. Stores neither persist nor return them.
	SenderName    string
	RecipientName string
}

// MessageStore persists and queries private messages.
//
// Requirements:
//   - Insert assigns ID (ULID) and SentAt when they are empty and returns the stored record.
//   - FindBySender / FindByRecipient return every matching message; order is not part of the contract.
//   - MarkRead sets ReadByRecipient on every message of the (sender, recipient) pair and
//     returns how many records changed; repeating it is a no-op.
//   - Implementations are safe for concurrent use.
type MessageStore interface {
	Insert(ctx context.Context, m Message) (Message, error)
	FindBySender(ctx context.Context, userID string) ([]Message, error)
	FindByRecipient(ctx context.Context, userID string) ([]Message, error)
	MarkRead(ctx context.Context, senderID, recipientID string) (int64, error)
	Close() error
}

// errInvalidRecord is returned by stores for records missing a participant or content.
var errInvalidRecord = errors.New("invalid input")

// prepareInsert validates m and fills the store-assigned fields.
func prepareInsert(m Message) (Message, error) {
	if m.SenderID == "" || m.RecipientID == "" || m.Content == "" {
		return Message{}, errInvalidRecord
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	m.SentAt = m.SentAt.UTC()
	if m.ID == "" {
		id, err := NewMessageID(m.SentAt)
		if err != nil {
			return Message{}, fmt.Errorf("message id: %w", err)
		}
		m.ID = id
	}
	return m, nil
}
