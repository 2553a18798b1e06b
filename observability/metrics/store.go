package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/GoCodeAlone/todos/store"
)

// InstrumentedStore records a counter and a latency observation for every
// call to the wrapped store.
type InstrumentedStore struct {
	next      store.CollectionStore
	backend   string
	collector *Collector
}

// InstrumentStore wraps s. backend is used as the "backend" label.
func InstrumentStore(s store.CollectionStore, backend string, c *Collector) *InstrumentedStore {
	return &InstrumentedStore{next: s, backend: backend, collector: c}
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	result := ResultOK
	switch {
	case errors.Is(err, store.ErrNotFound):
		result = ResultNotFound
	case err != nil:
		result = ResultError
	}
	s.collector.RecordStoreOperation(s.backend, op, result, time.Since(start))
}

func (s *InstrumentedStore) Insert(ctx context.Context, namespace string, rec store.Record) (string, error) {
	start := time.Now()
	key, err := s.next.Insert(ctx, namespace, rec)
	s.observe(store.OpInsert, start, err)
	return key, err
}

func (s *InstrumentedStore) FetchAll(ctx context.Context, namespace string) ([]store.Entry, error) {
	start := time.Now()
	entries, err := s.next.FetchAll(ctx, namespace)
	s.observe(store.OpFetchAll, start, err)
	return entries, err
}

func (s *InstrumentedStore) UpdateFields(ctx context.Context, namespace, key string, fields store.Record) error {
	start := time.Now()
	err := s.next.UpdateFields(ctx, namespace, key, fields)
	s.observe(store.OpUpdateFields, start, err)
	return err
}

func (s *InstrumentedStore) Remove(ctx context.Context, namespace, key string) error {
	start := time.Now()
	err := s.next.Remove(ctx, namespace, key)
	s.observe(store.OpRemove, start, err)
	return err
}

func (s *InstrumentedStore) Close() error { return s.next.Close() }
