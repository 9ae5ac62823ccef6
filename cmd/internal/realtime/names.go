package realtime

import (
	"context"
	"log/slog"

	"unifree/cmd/identity"

	"github.com/samber/lo"
)

// nameBook resolves participant display names for messages handed to clients.
// A nil directory resolves nothing.
type nameBook struct {
	log   *slog.Logger
	users identity.Directory
}

// resolve looks up each distinct id once. Ids already in known are not looked up again.
// Unknown users and lookup failures leave the name empty.
func (b nameBook) resolve(ctx context.Context, known map[string]string, ids ...string) map[string]string {
	names := make(map[string]string, len(ids))
	for id, name := range known {
		names[id] = name
	}
	if b.users == nil {
		return names
	}

	for _, id := range lo.Uniq(lo.Compact(ids)) {
		if _, ok := names[id]; ok {
			continue
		}
		u, err := b.users.FindByID(ctx, id)
		if err != nil {
			if !identity.IsNotFound(err) {
				b.log.Warn("names.lookup.fail", "user_id", id, "err", err)
			}
			continue
		}
		names[id] = u.DisplayName
	}
	return names
}

// label fills SenderName and RecipientName of ms from names.
func label(ms []Message, names map[string]string) []Message {
	return lo.Map(ms, func(m Message, _ int) Message {
		m.SenderName = names[m.SenderID]
		m.RecipientName = names[m.RecipientID]
		return m
	})
}

func participants(ms []Message) []string {
	return lo.FlatMap(ms, func(m Message, _ int) []string {
		return []string{m.SenderID, m.RecipientID}
	})
}
