package identity

import (
	"errors"
	"fmt"
)

// Sentinel kinds, stable for errors.Is.
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
)

// OpError wraps a sentinel kind with the failing operation and a short detail.
type OpError struct {
	Op     string
	Kind   error
	Detail string
}

func (e OpError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Detail)
}

func (e OpError) Unwrap() error { return e.Kind }

// NotFoundError reports that no user has UserID.
type NotFoundError struct {
	Op     string
	UserID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s: user %q: %v", e.Op, e.UserID, ErrNotFound)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidInput reports whether err is, or wraps, ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

func invalid(op, detail string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Detail: detail}
}
