package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("entry not found")
	ErrDuplicateID = errors.New("generated id already in use")
	ErrClosed      = errors.New("store closed")
)

// Entry is implemented by payloads kept in a Store. WithID stamps the
// generated identifier onto the payload, Clone detaches it from shared memory.
type Entry[T any] interface {
	WithID(id string) T
	Clone() T
}

// Store is a keyed, insert-only collection. Implementations must be safe for
// concurrent Create and Get from independent requests.
type Store[T Entry[T]] interface {
	// Create assigns a fresh id to payload, inserts it and returns the id.
	Create(ctx context.Context, payload T) (string, error)
	// Get returns a copy of the payload stored under id, or ErrNotFound.
	Get(ctx context.Context, id string) (T, error)
	// Len reports the number of live entries.
	Len(ctx context.Context) (int, error)
	// Close releases the store. Later calls fail with ErrClosed.
	Close() error
}

// NewID returns a random (version 4) UUID string.
func NewID() string {
	return uuid.NewString()
}
