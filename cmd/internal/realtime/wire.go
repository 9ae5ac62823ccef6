package realtime

import (
	"encoding/json"
	"time"

	v1 "unifree/shared/contracts/messaging/v1"

	"github.com/samber/lo"
)

func toWireMessage(m Message) v1.Message {
	return v1.Message{
		ID:              m.ID,
		SentAt:          m.SentAt.UTC(),
		SenderID:        m.SenderID,
		SenderName:      m.SenderName,
		RecipientID:     m.RecipientID,
		RecipientName:   m.RecipientName,
		Content:         m.Content,
		ReadByRecipient: m.ReadByRecipient,
		ReadBySender:    m.ReadBySender,
	}
}

func toWireMessages(ms []Message) []v1.Message {
	return lo.Map(ms, func(m Message, _ int) v1.Message {
		return toWireMessage(m)
	})
}

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      NewEnvelopeID(ts),
		TS:      ts,
		Payload: payload,
	}
}

// mustPayload marshals payload types owned by this package; they cannot fail to encode.
func mustPayload(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func newMessageEnvelope(m Message, now time.Time) v1.Envelope {
	return newEnvelope(v1.TypeNewMessage, mustPayload(v1.NewMessagePayload{Message: toWireMessage(m)}), now)
}

func ackEnvelope(clientMsgID string, m Message, now time.Time) v1.Envelope {
	return newEnvelope(v1.TypeMessageAck, mustPayload(v1.MessageAckPayload{
		ClientMsgID: clientMsgID,
		Message:     toWireMessage(m),
	}), now)
}

func historyEnvelope(ms []Message, now time.Time) v1.Envelope {
	msgs := toWireMessages(ms)
	if msgs == nil {
		msgs = []v1.Message{}
	}
	return newEnvelope(v1.TypeInitialHistory, mustPayload(v1.InitialHistoryPayload{Messages: msgs}), now)
}

func errorEnvelope(code, msg string, now time.Time) v1.Envelope {
	return newEnvelope(v1.TypeError, mustPayload(v1.ErrorPayload{Code: code, Message: msg}), now)
}
