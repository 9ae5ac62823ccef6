package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"unifree/cmd/identity"
)

// SendInput is a validated send_message event.
type SendInput struct {
	RecipientID string
	Content     string
	ClientMsgID string
}

// Dispatcher persists a message and then attempts live delivery to its recipient.
type Dispatcher struct {
	log      *slog.Logger
	store    MessageStore
	presence *Presence
	names    nameBook
	metrics  *Metrics
	now      func() time.Time
}

// NewDispatcher constructs a Dispatcher. users resolves the recipient's display name and
// may be nil.
func NewDispatcher(log *slog.Logger, store MessageStore, presence *Presence, users identity.Directory, metrics *Metrics) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		log:      log,
		store:    store,
		presence: presence,
		names:    nameBook{log: log, users: users},
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Send persists the message from sender and pushes it to the recipient's session when one is
// registered. Delivery is never attempted before Insert succeeded.
//
// An offline recipient or a full recipient queue is not an error: the message stays in the
// store and reaches the recipient in its next history snapshot.
//
// Content is stored exactly as given; only its trimmed form must be non-empty.
func (d *Dispatcher) Send(ctx context.Context, sender *Client, in SendInput) (Message, error) {
	if sender == nil || sender.UserID == "" {
		return Message{}, fmt.Errorf("%w: missing sender", ErrInvalidMessage)
	}

	recipient := strings.TrimSpace(in.RecipientID)
	if recipient == "" {
		return Message{}, fmt.Errorf("%w: missing recipient_id", ErrInvalidMessage)
	}
	content := in.Content
	if strings.TrimSpace(content) == "" {
		return Message{}, fmt.Errorf("%w: empty content", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(content) > maxMessageChars {
		return Message{}, fmt.Errorf("%w: content too long: max=%d chars", ErrInvalidMessage, maxMessageChars)
	}

	now := d.now()
	stored, err := d.store.Insert(ctx, Message{
		SentAt:          now,
		SenderID:        sender.UserID,
		RecipientID:     recipient,
		Content:         content,
		ReadByRecipient: false,
		ReadBySender:    true,
	})
	if err != nil {
		d.metrics.persistFailed()
		d.log.Error("dispatch.persist.fail", "sender_id", sender.UserID, "recipient_id", recipient, "err", err)
		return Message{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	d.metrics.messagePersisted()

	names := d.names.resolve(ctx, map[string]string{sender.UserID: sender.DisplayName}, recipient)
	stored = label([]Message{stored}, names)[0]

	d.deliver(stored, now)
	return stored, nil
}

func (d *Dispatcher) deliver(m Message, now time.Time) {
	target, ok := d.presence.Lookup(m.RecipientID)
	if !ok {
		d.metrics.delivery(DeliveryOffline)
		d.log.Debug("dispatch.offline", "message_id", m.ID, "recipient_id", m.RecipientID)
		return
	}

	if !target.Deliver(newMessageEnvelope(m, now)) {
		d.metrics.delivery(DeliveryDropped)
		d.log.Warn("dispatch.drop", "message_id", m.ID, "recipient_id", m.RecipientID, "session_id", target.SessionID)
		return
	}
	d.metrics.delivery(DeliveryLive)
}
