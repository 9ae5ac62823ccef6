package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// ReadReceipts marks messages as read on behalf of their recipient.
type ReadReceipts struct {
	log     *slog.Logger
	store   MessageStore
	metrics *Metrics
}

// NewReadReceipts constructs a ReadReceipts handler.
func NewReadReceipts(log *slog.Logger, store MessageStore, metrics *Metrics) *ReadReceipts {
	if log == nil {
		log = slog.Default()
	}
	return &ReadReceipts{log: log, store: store, metrics: metrics}
}

// MarkRead flags every message from senderID to the reader as read and returns how many
// changed. Nothing is sent to either party.
func (r *ReadReceipts) MarkRead(ctx context.Context, reader *Client, senderID string) (int64, error) {
	if reader == nil || reader.UserID == "" {
		return 0, fmt.Errorf("%w: missing reader", ErrInvalidMessage)
	}
	senderID = strings.TrimSpace(senderID)
	if senderID == "" {
		return 0, fmt.Errorf("%w: missing sender_id", ErrInvalidMessage)
	}

	n, err := r.store.MarkRead(ctx, senderID, reader.UserID)
	if err != nil {
		r.metrics.readReceipt("error", 0)
		r.log.Error("receipts.mark_read.fail", "sender_id", senderID, "recipient_id", reader.UserID, "err", err)
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	r.metrics.readReceipt("ok", n)
	r.log.Debug("receipts.mark_read", "sender_id", senderID, "recipient_id", reader.UserID, "changed", n)
	return n, nil
}
