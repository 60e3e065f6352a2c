package store

import (
	"context"
	"errors"
)

// Key addresses one item in the flat collection. Partition groups every
// item that belongs to the same session (or connection mapping), Sort
// distinguishes items within the partition.
type Key struct {
	Partition string
	Sort      string
}

// Item is one persisted record's fields. Values are plain Go types:
// string, bool, int64, float64, or []any for list fields.
type Item map[string]any

// KeyedItem pairs an item with its storage key, as returned by prefix
// queries.
type KeyedItem struct {
	Key    Key
	Fields Item
}

// FieldUpdate is one element of a transactional multi-item update.
type FieldUpdate struct {
	Key    Key
	Fields Item
}

var (
	// ErrNotFound is returned by Get when no item exists under the key.
	ErrNotFound = errors.New("store: item not found")

	// ErrConflict is returned by PutIfAbsent when an item already exists.
	ErrConflict = errors.New("store: item already exists")
)

// Store is the persistence contract for session, player, and connection
// records. Every operation is atomic per item; UpdateMulti is the only
// cross-item atomic primitive. Implementations must remain stateless and
// never cache items across calls.
type Store interface {
	// Get reads one item. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, key Key) (Item, error)

	// Put writes the full item, replacing any previous fields.
	Put(ctx context.Context, key Key, item Item) error

	// PutIfAbsent writes the full item only if no item exists under the
	// key. Returns ErrConflict otherwise. This is the uniqueness gate
	// for session code allocation.
	PutIfAbsent(ctx context.Context, key Key, item Item) error

	// Update sets the given fields on an item, leaving other fields
	// untouched. Creates the item if absent (upsert); callers that need
	// update-of-absent to fail must check existence first.
	Update(ctx context.Context, key Key, fields Item) error

	// UpdateMulti applies every field update in one transaction. Either
	// all of them become visible or none do.
	UpdateMulti(ctx context.Context, updates []FieldUpdate) error

	// Delete removes an item and any set fields attached to it. Deleting
	// an absent item is a no-op.
	Delete(ctx context.Context, key Key) error

	// DeletePartition removes every item (and set field) in a partition.
	DeletePartition(ctx context.Context, partition string) error

	// QueryPrefix returns every item in a partition, ordered ascending
	// by sort key. An unknown partition yields an empty slice.
	QueryPrefix(ctx context.Context, partition string) ([]KeyedItem, error)

	// AddToSet atomically adds members to a set-typed field.
	AddToSet(ctx context.Context, key Key, field string, members ...string) error

	// RemoveFromSet atomically removes members from a set-typed field
	// and returns the remaining members, sorted. Removing members that
	// are not present is a no-op.
	RemoveFromSet(ctx context.Context, key Key, field string, members ...string) ([]string, error)

	// SetMembers returns the members of a set-typed field, sorted. An
	// absent set yields an empty slice.
	SetMembers(ctx context.Context, key Key, field string) ([]string, error)

	// Increment atomically adds delta to a numeric field and returns the
	// new value. An absent field counts from zero.
	Increment(ctx context.Context, key Key, field string, delta int64) (int64, error)
}
