// Package collection presents one store namespace as an ordered collection:
// newest-first pages, a count, and keyed partial updates.
package collection

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/GoCodeAlone/todos/store"
)

// ErrNoData reports that the collection holds no records. Handlers answer it
// with 404 rather than treating it as a failure.
var ErrNoData = errors.New("no data")

// Collection binds a CollectionStore to a namespace.
type Collection struct {
	store     store.CollectionStore
	namespace string
	timeout   time.Duration
}

// Option configures a Collection.
type Option func(*Collection)

// WithTimeout bounds every store call. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Collection) { c.timeout = d }
}

// New creates a Collection over namespace in s.
func New(s store.CollectionStore, namespace string, opts ...Option) *Collection {
	c := &Collection{store: s, namespace: namespace}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Namespace returns the store namespace backing the collection.
func (c *Collection) Namespace() string { return c.namespace }

func (c *Collection) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Insert stores rec under a new key and returns the key.
func (c *Collection) Insert(ctx context.Context, rec store.Record) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.store.Insert(ctx, c.namespace, rec)
}

// List returns the requested page of the collection, newest record first.
// An offset past the end yields an empty page.
func (c *Collection) List(ctx context.Context, page Page) ([]Entry, error) {
	entries, err := c.fetchAll(ctx)
	if err != nil {
		return nil, err
	}

	// The whole sequence is reversed before slicing so pages are stable
	// windows over the newest-first order.
	view := make([]Entry, len(entries))
	for i, e := range entries {
		view[i] = Entry{Key: e.Key, Record: e.Record}
	}
	slices.Reverse(view)

	start, end := page.bounds(len(view))
	return view[start:end], nil
}

// Count returns the number of records. An empty collection is ErrNoData, not
// zero.
func (c *Collection) Count(ctx context.Context) (int, error) {
	entries, err := c.fetchAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// UpdateFields merges fields into the record at key, creating it if absent.
func (c *Collection) UpdateFields(ctx context.Context, key string, fields store.Record) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.store.UpdateFields(ctx, c.namespace, key, fields)
}

// Remove deletes the record at key. Removing a missing key succeeds.
func (c *Collection) Remove(ctx context.Context, key string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.store.Remove(ctx, c.namespace, key)
}

func (c *Collection) fetchAll(ctx context.Context) ([]store.Entry, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	entries, err := c.store.FetchAll(ctx, c.namespace)
	if errors.Is(err, store.ErrNotFound) || (err == nil && len(entries) == 0) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}
