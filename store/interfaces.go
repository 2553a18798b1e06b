package store

import "context"

// Record is an arbitrary JSON object supplied by a caller. The store never
// interprets its fields.
type Record map[string]any

// Entry is a stored record together with its generated key.
type Entry struct {
	Key    string
	Record Record
}

// CollectionStore is the contract every backend implements. Keys are ordered
// so that ascending key order is insertion order.
type CollectionStore interface {
	// Insert writes rec under a freshly generated key and returns that key.
	Insert(ctx context.Context, namespace string, rec Record) (string, error)
	// FetchAll returns every record in the namespace in ascending key order,
	// or ErrNotFound when the namespace is empty or absent.
	FetchAll(ctx context.Context, namespace string) ([]Entry, error)
	// UpdateFields merges fields into the record at key, creating it if it
	// does not exist. Fields not named in the update are left untouched.
	UpdateFields(ctx context.Context, namespace, key string, fields Record) error
	// Remove deletes the record at key. Removing an absent key succeeds.
	Remove(ctx context.Context, namespace, key string) error
	// Close releases backend resources.
	Close() error
}
