package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryDirectory is a dev-only directory used when no database is configured.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryDirectory constructs a directory seeded with users.
func NewMemoryDirectory(users ...User) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]User, len(users))}
	for _, u := range users {
		d.Put(u)
	}
	return d
}

// Put inserts or replaces a user.
func (d *MemoryDirectory) Put(u User) {
	if strings.TrimSpace(u.ID) == "" {
		return
	}
	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
}

// FindByID returns the user with the given id.
func (d *MemoryDirectory) FindByID(ctx context.Context, userID string) (User, error) {
	const op = "identity.FindByID"

	if strings.TrimSpace(userID) == "" {
		return User{}, invalid(op, "missing user_id")
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	d.mu.RLock()
	u, ok := d.users[userID]
	d.mu.RUnlock()
	if !ok {
		return User{}, NotFoundError{Op: op, UserID: userID}
	}
	return u, nil
}

// ParseUserList parses "id:name,id:name" into users.
// It is the format of UNIFREE_DEV_USERS.
func ParseUserList(raw string) ([]User, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	out := make([]User, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, name, ok := strings.Cut(p, ":")
		id = strings.TrimSpace(id)
		name = strings.TrimSpace(name)
		if !ok || id == "" || name == "" {
			return nil, invalid("identity.ParseUserList", fmt.Sprintf("bad entry %q", p))
		}
		out = append(out, User{ID: id, DisplayName: name})
	}
	return out, nil
}
