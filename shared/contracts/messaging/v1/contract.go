// Package v1 defines the uniFree Messaging Protocol v1 contract.
//
// It is shared between the server and clients (including tools/scripts/ws-smoke.go)
// so the wire format has one authoritative definition.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is negotiated during the websocket upgrade.
const Subprotocol = "unifree.messaging.v1"

// Type constants (wire-stable).
const (
	// TypeSendMessage sends a private message to another user (client -> server).
	TypeSendMessage = "send_message"
	// TypeMarkRead marks every message from a sender to the current user as read (client -> server).
	TypeMarkRead = "mark_read"

	// TypeInitialHistory carries the snapshot of prior messages, once per session (server -> client).
	TypeInitialHistory = "initial_history"
	// TypeNewMessage delivers a persisted message to its recipient (server -> client).
	TypeNewMessage = "new_message"
	// TypeMessageAck confirms persistence of a message to its sender (server -> client).
	TypeMessageAck = "message_ack"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeSendMessage,
		TypeMarkRead,
		TypeInitialHistory,
		TypeNewMessage,
		TypeMessageAck,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// SendMessagePayload requests delivery of a private message.
// ClientMsgID is optional and only echoed back in the ack.
type SendMessagePayload struct {
	RecipientID string `json:"recipient_id" validate:"required"`
	Content     string `json:"content" validate:"required"`
	ClientMsgID string `json:"client_msg_id,omitempty" validate:"omitempty,max=64"`
}

// MarkReadPayload acknowledges every message received from SenderID.
type MarkReadPayload struct {
	SenderID string `json:"sender_id" validate:"required"`
}

// Message is the wire representation of a stored message.
// SenderName and RecipientName are the participants' display names; they are empty when the
// user is no longer known to the directory.
type Message struct {
	ID              string    `json:"id"`
	SentAt          time.Time `json:"sent_at"`
	SenderID        string    `json:"sender_id"`
	SenderName      string    `json:"sender_name,omitempty"`
	RecipientID     string    `json:"recipient_id"`
	RecipientName   string    `json:"recipient_name,omitempty"`
	Content         string    `json:"content"`
	ReadByRecipient bool      `json:"read_by_recipient"`
	ReadBySender    bool      `json:"read_by_sender"`
}

// InitialHistoryPayload is the unordered snapshot of every message the user sent or received.
//
// It is the first frame of every session. Live delivery starts before the snapshot is read
// from the store, so a message may appear both here and in a following new_message;
// clients dedupe by Message.ID.
type InitialHistoryPayload struct {
	Messages []Message `json:"messages"`
}

// NewMessagePayload carries a message to its recipient.
type NewMessagePayload struct {
	Message Message `json:"message"`
}

// MessageAckPayload confirms to the sender that Message was persisted.
type MessageAckPayload struct {
	ClientMsgID string  `json:"client_msg_id,omitempty"`
	Message     Message `json:"message"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
