package identity

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDirectory resolves users from the marketplace users table.
//
// The pgx pool is owned by the caller; this directory must NOT close it.
// Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
type PostgresDirectory struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the directory.
type PostgresOption func(*PostgresDirectory) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema holding the users table (default "unifree").
func WithSchema(schema string) PostgresOption {
	return func(d *PostgresDirectory) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return errors.New("identity: invalid schema identifier")
		}
		d.schema = schema
		return nil
	}
}

// NewPostgresDirectory constructs a PostgresDirectory.
func NewPostgresDirectory(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresDirectory, error) {
	d := &PostgresDirectory{
		pool:   pool,
		schema: "unifree",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if d.pool == nil {
		return nil, errors.New("identity: nil pool")
	}
	return d, nil
}

// FindByID loads the id and username of a user.
func (d *PostgresDirectory) FindByID(ctx context.Context, userID string) (User, error) {
	const op = "identity.FindByID"

	if d == nil || d.pool == nil {
		return User{}, invalid(op, "nil directory")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, invalid(op, "missing user_id")
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	users := pgx.Identifier{d.schema, "users"}.Sanitize()

	var u User
	err := d.pool.QueryRow(ctx,
		`SELECT id, username FROM `+users+` WHERE id = $1`,
		userID,
	).Scan(&u.ID, &u.DisplayName)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, UserID: userID}
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}
