package realtime

import (
	"context"
	"testing"

	"unifree/cmd/identity"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestHistoryLoader_SentAndReceived(t *testing.T) {
	req := require.New(t)
	store := NewInMemoryStore()
	h := NewHistoryLoader(discardLogger(), store, nil)

	a1 := seedMessage(t, store, "alice", "bob", "a1")
	b1 := seedMessage(t, store, "bob", "alice", "b1")
	seedMessage(t, store, "carol", "dave", "unrelated")
	c1 := seedMessage(t, store, "carol", "alice", "c1")

	got, err := h.Load(context.Background(), "alice")
	req.NoError(err)
	req.ElementsMatch(
		[]string{a1.ID, b1.ID, c1.ID},
		lo.Map(got, func(m Message, _ int) string { return m.ID }),
	)
}

func TestHistoryLoader_SelfMessageOnce(t *testing.T) {
	req := require.New(t)
	store := NewInMemoryStore()
	h := NewHistoryLoader(discardLogger(), store, nil)

	self := seedMessage(t, store, "alice", "alice", "note to self")

	got, err := h.Load(context.Background(), "alice")
	req.NoError(err)
	req.Len(got, 1)
	req.Equal(self.ID, got[0].ID)
}

func TestHistoryLoader_Empty(t *testing.T) {
	got, err := NewHistoryLoader(discardLogger(), NewInMemoryStore(), nil).Load(context.Background(), "newbie")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestHistoryLoader_StoreFailure(t *testing.T) {
	_, err := NewHistoryLoader(discardLogger(), failingStore{}, nil).Load(context.Background(), "alice")
	require.ErrorIs(t, err, ErrPersistence)
	require.ErrorIs(t, err, errStoreDown)
}

func TestHistoryLoader_ResolvesParticipantNames(t *testing.T) {
	req := require.New(t)
	store := NewInMemoryStore()
	users := identity.NewMemoryDirectory(
		identity.User{ID: "alice", DisplayName: "Alice"},
		identity.User{ID: "bob", DisplayName: "Bob"},
	)
	h := NewHistoryLoader(discardLogger(), store, users)

	a1 := seedMessage(t, store, "alice", "bob", "a1")
	g1 := seedMessage(t, store, "ghost", "alice", "g1")

	got, err := h.Load(context.Background(), "alice")
	req.NoError(err)
	req.Len(got, 2)

	byID := lo.KeyBy(got, func(m Message) string { return m.ID })
	req.Equal("Alice", byID[a1.ID].SenderName)
	req.Equal("Bob", byID[a1.ID].RecipientName)
	req.Empty(byID[g1.ID].SenderName)
	req.Equal("Alice", byID[g1.ID].RecipientName)
}
