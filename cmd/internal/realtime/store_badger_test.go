package realtime

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func newTestBadgerStore(t *testing.T) MessageStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewBadgerStore(db)
	require.NoError(t, err)
	return s
}

func TestBadgerStore_Contract(t *testing.T) {
	runMessageStoreContract(t, newTestBadgerStore)
}

func TestBadgerStore_ReopenKeepsMessages(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()

	s, err := OpenBadgerStore(dir)
	req.NoError(err)
	stored := seedMessage(t, s, "alice", "bob", "persisted")
	_, err = s.MarkRead(context.Background(), "alice", "bob")
	req.NoError(err)
	req.NoError(s.Close())

	s, err = OpenBadgerStore(dir)
	req.NoError(err)
	defer func() { _ = s.Close() }()

	got, err := s.FindByRecipient(context.Background(), "bob")
	req.NoError(err)
	req.Len(got, 1)
	req.Equal(stored.ID, got[0].ID)
	req.True(got[0].ReadByRecipient)

	n, err := s.MarkRead(context.Background(), "alice", "bob")
	req.NoError(err)
	req.Equal(int64(0), n)
}

func TestBadgerStore_IDOrder(t *testing.T) {
	req := require.New(t)
	s := newTestBadgerStore(t)

	first := seedMessage(t, s, "alice", "bob", "1")
	second := seedMessage(t, s, "alice", "bob", "2")

	got, err := s.FindBySender(context.Background(), "alice")
	req.NoError(err)
	req.Len(got, 2)
	req.Equal(first.ID, got[0].ID)
	req.Equal(second.ID, got[1].ID)
}

func TestNewBadgerStore_NilDB(t *testing.T) {
	_, err := NewBadgerStore(nil)
	require.Error(t, err)
}
