package identity

import "context"

// User is the identity projection the messaging server needs.
// DisplayName is the account's username in the marketplace.
type User struct {
	ID          string
	DisplayName string
}

// Directory resolves user ids.
//
// FindByID returns an error wrapping ErrNotFound when no such user exists;
// any other error means the lookup itself failed.
type Directory interface {
	FindByID(ctx context.Context, userID string) (User, error)
}
