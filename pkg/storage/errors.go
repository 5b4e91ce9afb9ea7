package storage

import "errors"

var (
	// ErrNotFound marks a lookup for a completion that does not exist or
	// was soft-deleted.
	ErrNotFound = errors.New("completion not found")

	// ErrConflict marks an insert whose completion ID is already taken.
	ErrConflict = errors.New("completion already exists")
)
