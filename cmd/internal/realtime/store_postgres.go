package realtime

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a MessageStore backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Messages are append-only; the only update is the bulk read flag flip in MarkRead.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "unifree").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("realtime: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("realtime: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed MessageStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "unifree",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("realtime: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Migrate creates the schema, messages table and indexes when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("realtime: nil store")
	}
	messages := pgIdent(s.schema, "messages")
	schema := pgx.Identifier{s.schema}.Sanitize()

	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + schema,
		`CREATE TABLE IF NOT EXISTS ` + messages + ` (
		     id                TEXT PRIMARY KEY,
		     sent_at           TIMESTAMPTZ NOT NULL,
		     sender_id         TEXT NOT NULL,
		     recipient_id      TEXT NOT NULL,
		     content           TEXT NOT NULL CHECK (content <> ''),
		     read_by_recipient BOOLEAN NOT NULL DEFAULT false,
		     read_by_sender    BOOLEAN NOT NULL DEFAULT true
		 )`,
		`CREATE INDEX IF NOT EXISTS messages_sender_idx ON ` + messages + ` (sender_id, sent_at)`,
		`CREATE INDEX IF NOT EXISTS messages_recipient_idx ON ` + messages + ` (recipient_id, sent_at)`,
		`CREATE INDEX IF NOT EXISTS messages_unread_idx ON ` + messages + ` (sender_id, recipient_id) WHERE NOT read_by_recipient`,
	}
	for _, q := range stmts {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("realtime: migrate: %w", err)
		}
	}
	return nil
}

// Insert stores m, assigning ID and SentAt when empty.
func (s *PostgresStore) Insert(ctx context.Context, m Message) (Message, error) {
	if s == nil || s.pool == nil {
		return Message{}, errors.New("realtime: nil store")
	}
	m, err := prepareInsert(m)
	if err != nil {
		return Message{}, err
	}

	messages := pgIdent(s.schema, "messages")
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+messages+` (
		     id, sent_at, sender_id, recipient_id, content, read_by_recipient, read_by_sender
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.SentAt, m.SenderID, m.RecipientID, m.Content, m.ReadByRecipient, m.ReadBySender,
	); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// FindBySender returns every message sent by userID.
func (s *PostgresStore) FindBySender(ctx context.Context, userID string) ([]Message, error) {
	return s.find(ctx, "sender_id", userID)
}

// FindByRecipient returns every message addressed to userID.
func (s *PostgresStore) FindByRecipient(ctx context.Context, userID string) ([]Message, error) {
	return s.find(ctx, "recipient_id", userID)
}

// MarkRead flips read_by_recipient on the unread messages of the pair in one statement.
func (s *PostgresStore) MarkRead(ctx context.Context, senderID, recipientID string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("realtime: nil store")
	}

	messages := pgIdent(s.schema, "messages")
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+messages+`
		    SET read_by_recipient = true
		  WHERE sender_id = $1 AND recipient_id = $2 AND NOT read_by_recipient`,
		senderID, recipientID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// find only accepts the two participant columns; col is never user input.
func (s *PostgresStore) find(ctx context.Context, col, userID string) ([]Message, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("realtime: nil store")
	}
	if col != "sender_id" && col != "recipient_id" {
		return nil, fmt.Errorf("realtime: unsupported column %q", col)
	}

	messages := pgIdent(s.schema, "messages")
	rows, err := s.pool.Query(ctx,
		`SELECT id, sent_at, sender_id, recipient_id, content, read_by_recipient, read_by_sender
		   FROM `+messages+`
		  WHERE `+col+` = $1
		  ORDER BY sent_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}

	out, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanMessage(row pgx.CollectableRow) (Message, error) {
	var m Message
	err := row.Scan(
		&m.ID,
		&m.SentAt,
		&m.SenderID,
		&m.RecipientID,
		&m.Content,
		&m.ReadByRecipient,
		&m.ReadBySender,
	)
	m.SentAt = m.SentAt.UTC()
	return m, err
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
