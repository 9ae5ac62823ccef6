package realtime

import (
	"context"
	"sync"
)

// InMemoryStore is a dev-only fallback when neither Postgres nor Badger is configured.
// Messages live as long as the process.
type InMemoryStore struct {
	mu   sync.RWMutex
	msgs []Message
	ids  map[string]int // message id -> index in msgs
}

// NewInMemoryStore constructs an in-memory MessageStore implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		msgs: make([]Message, 0, 256),
		ids:  make(map[string]int),
	}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// Insert stores m, assigning ID and SentAt when empty.
func (s *InMemoryStore) Insert(ctx context.Context, m Message) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	m, err := prepareInsert(m)
	if err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.ids[m.ID]; dup {
		return Message{}, errInvalidRecord
	}
	s.ids[m.ID] = len(s.msgs)
	s.msgs = append(s.msgs, m)
	return m, nil
}

// FindBySender returns copies of every message sent by userID.
func (s *InMemoryStore) FindBySender(ctx context.Context, userID string) ([]Message, error) {
	return s.filter(ctx, func(m Message) bool { return m.SenderID == userID })
}

// FindByRecipient returns copies of every message addressed to userID.
func (s *InMemoryStore) FindByRecipient(ctx context.Context, userID string) ([]Message, error) {
	return s.filter(ctx, func(m Message) bool { return m.RecipientID == userID })
}

// MarkRead flips ReadByRecipient on the unread messages of the pair.
func (s *InMemoryStore) MarkRead(ctx context.Context, senderID, recipientID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for i := range s.msgs {
		m := &s.msgs[i]
		if m.SenderID == senderID && m.RecipientID == recipientID && !m.ReadByRecipient {
			m.ReadByRecipient = true
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) filter(ctx context.Context, keep func(Message) bool) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Message
	for _, m := range s.msgs {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out, nil
}
