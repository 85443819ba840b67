// Package storage defines the keyed record persistence adapter used by the
// local store.
//
// The adapter is a plain get-all / put / clear store keyed by record id, one
// logical collection per record type. Implementations must be scoped per
// authenticated identity so switching accounts uses an isolated namespace.
package storage

import "context"

// Collection names the logical record collections.
const (
	CollectionLists = "lists"
	CollectionTasks = "tasks"
)

// Adapter persists JSON-encoded records keyed by id.
//
// Persistence is fire-and-forget from the store's point of view: callers
// read from their in-memory copy and treat adapter failures as non-fatal.
type Adapter interface {
	// GetAll returns every record in the collection, in unspecified order.
	GetAll(ctx context.Context, collection string) ([][]byte, error)

	// Put inserts or replaces the record with the given id.
	Put(ctx context.Context, collection, id string, record []byte) error

	// Delete removes the record with the given id. Deleting a missing
	// record is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Clear removes every record in the collection.
	Clear(ctx context.Context, collection string) error

	// Close releases the underlying resources.
	Close() error
}
