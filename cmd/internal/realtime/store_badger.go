package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Key layout (all parts separated by 0x00, ids are ULIDs so prefix scans run in id order):
//
//	m\x00{id}                          -> JSON record
//	s\x00{sender}\x00{id}              -> sender index
//	r\x00{recipient}\x00{id}           -> recipient index
//	u\x00{sender}\x00{recipient}\x00{id} -> unread index, removed once read
const (
	badgerSep = "\x00"

	badgerConflictRetries = 5
)

// BadgerStore is an embedded MessageStore for single-node deployments without Postgres.
type BadgerStore struct {
	db    *badger.DB
	owned bool
}

type badgerRecord struct {
	ID              string    `json:"id"`
	SentAt          time.Time `json:"sent_at"`
	SenderID        string    `json:"sender_id"`
	RecipientID     string    `json:"recipient_id"`
	Content         string    `json:"content"`
	ReadByRecipient bool      `json:"read_by_recipient"`
	ReadBySender    bool      `json:"read_by_sender"`
}

// OpenBadgerStore opens (or creates) a Badger database at path. Close releases it.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("realtime: open badger: %w", err)
	}
	return &BadgerStore{db: db, owned: true}, nil
}

// NewBadgerStore wraps a database owned by the caller; Close is then a no-op.
func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	if db == nil {
		return nil, errors.New("realtime: nil badger db")
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the database when the store opened it.
func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil || !s.owned {
		return nil
	}
	return s.db.Close()
}

// Insert stores m with its indexes in one transaction.
func (s *BadgerStore) Insert(ctx context.Context, m Message) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	m, err := prepareInsert(m)
	if err != nil {
		return Message{}, err
	}

	val, err := json.Marshal(toBadgerRecord(m))
	if err != nil {
		return Message{}, err
	}

	err = s.update(func(txn *badger.Txn) error {
		key := msgKey(m.ID)
		if _, err := txn.Get(key); err == nil {
			return errInvalidRecord
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := txn.Set(key, val); err != nil {
			return err
		}
		if err := txn.Set(indexKey("s", m.SenderID, m.ID), nil); err != nil {
			return err
		}
		if err := txn.Set(indexKey("r", m.RecipientID, m.ID), nil); err != nil {
			return err
		}
		if !m.ReadByRecipient {
			return txn.Set(indexKey("u", m.SenderID, m.RecipientID, m.ID), nil)
		}
		return nil
	})
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// FindBySender returns every message sent by userID in id order.
func (s *BadgerStore) FindBySender(ctx context.Context, userID string) ([]Message, error) {
	return s.scan(ctx, indexPrefix("s", userID))
}

// FindByRecipient returns every message addressed to userID in id order.
func (s *BadgerStore) FindByRecipient(ctx context.Context, userID string) ([]Message, error) {
	return s.scan(ctx, indexPrefix("r", userID))
}

// MarkRead flips ReadByRecipient on every unread message of the pair and drops their
// unread index entries.
func (s *BadgerStore) MarkRead(ctx context.Context, senderID, recipientID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var n int64
	err := s.update(func(txn *badger.Txn) error {
		n = 0
		prefix := indexPrefix("u", senderID, recipientID)

		ids, err := collectIDs(txn, prefix)
		if err != nil {
			return err
		}

		for _, id := range ids {
			rec, err := getRecord(txn, id)
			if err != nil {
				return err
			}
			rec.ReadByRecipient = true
			val, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := txn.Set(msgKey(id), val); err != nil {
				return err
			}
			if err := txn.Delete(append(append([]byte(nil), prefix...), id...)); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return n, nil
}

func (s *BadgerStore) scan(ctx context.Context, prefix []byte) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []Message
	err := s.db.View(func(txn *badger.Txn) error {
		ids, err := collectIDs(txn, prefix)
		if err != nil {
			return err
		}
		out = make([]Message, 0, len(ids))
		for _, id := range ids {
			rec, err := getRecord(txn, id)
			if err != nil {
				return err
			}
			out = append(out, rec.toMessage())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// update retries a read-write transaction on optimistic conflicts.
func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for range badgerConflictRetries {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func collectIDs(txn *badger.Txn, prefix []byte) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		ids = append(ids, string(it.Item().Key()[len(prefix):]))
	}
	return ids, nil
}

func getRecord(txn *badger.Txn, id string) (badgerRecord, error) {
	var rec badgerRecord
	item, err := txn.Get(msgKey(id))
	if err != nil {
		return rec, fmt.Errorf("message %s: %w", id, err)
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return rec, err
}

func msgKey(id string) []byte {
	return []byte("m" + badgerSep + id)
}

func indexPrefix(kind string, parts ...string) []byte {
	k := kind
	for _, p := range parts {
		k += badgerSep + p
	}
	return []byte(k + badgerSep)
}

func indexKey(kind string, parts ...string) []byte {
	last := parts[len(parts)-1]
	return append(indexPrefix(kind, parts[:len(parts)-1]...), last...)
}

func toBadgerRecord(m Message) badgerRecord {
	return badgerRecord{
		ID:              m.ID,
		SentAt:          m.SentAt,
		SenderID:        m.SenderID,
		RecipientID:     m.RecipientID,
		Content:         m.Content,
		ReadByRecipient: m.ReadByRecipient,
		ReadBySender:    m.ReadBySender,
	}
}

func (r badgerRecord) toMessage() Message {
	return Message{
		ID:              r.ID,
		SentAt:          r.SentAt.UTC(),
		SenderID:        r.SenderID,
		RecipientID:     r.RecipientID,
		Content:         r.Content,
		ReadByRecipient: r.ReadByRecipient,
		ReadBySender:    r.ReadBySender,
	}
}
