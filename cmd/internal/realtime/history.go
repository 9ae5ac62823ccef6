package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"unifree/cmd/identity"

	"golang.org/x/sync/errgroup"
)

// HistoryLoader builds the snapshot of every message a user sent or received.
type HistoryLoader struct {
	log   *slog.Logger
	store MessageStore
	names nameBook
}

// NewHistoryLoader constructs a HistoryLoader. users may be nil, in which case
// messages carry no display names.
func NewHistoryLoader(log *slog.Logger, store MessageStore, users identity.Directory) *HistoryLoader {
	if log == nil {
		log = slog.Default()
	}
	return &HistoryLoader{log: log, store: store, names: nameBook{log: log, users: users}}
}

// Load runs the sender and recipient queries concurrently and concatenates them, with
// participant display names filled in.
// A self-addressed message matches both queries and is returned once.
// No ordering is guaranteed.
func (h *HistoryLoader) Load(ctx context.Context, userID string) ([]Message, error) {
	var sent, received []Message

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sent, err = h.store.FindBySender(gctx, userID)
		if err != nil {
			return fmt.Errorf("find by sender: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		received, err = h.store.FindByRecipient(gctx, userID)
		if err != nil {
			return fmt.Errorf("find by recipient: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	out := make([]Message, 0, len(sent)+len(received))
	out = append(out, sent...)
	for _, m := range received {
		if m.SenderID == userID {
			continue
		}
		out = append(out, m)
	}
	return label(out, h.names.resolve(ctx, nil, participants(out)...)), nil
}
