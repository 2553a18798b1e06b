package store

import (
	"context"
	"sync"

	"github.com/GoCodeAlone/todos/keygen"
)

// MemoryStore is an in-memory CollectionStore for tests and local runs.
type MemoryStore struct {
	mu         sync.RWMutex
	keys       keygen.Generator
	namespaces map[string]map[string]Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(keys keygen.Generator) *MemoryStore {
	return &MemoryStore{
		keys:       keys,
		namespaces: make(map[string]map[string]Record),
	}
}

func (s *MemoryStore) Insert(_ context.Context, namespace string, rec Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.keys.NewKey()
	s.bucketLocked(namespace)[key] = rec.WithoutNulls()
	return key, nil
}

func (s *MemoryStore) FetchAll(_ context.Context, namespace string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.namespaces[namespace]
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	entries := make([]Entry, 0, len(records))
	for k, rec := range records {
		entries = append(entries, Entry{Key: k, Record: rec.Clone()})
	}
	sortEntries(entries)
	return entries, nil
}

func (s *MemoryStore) UpdateFields(_ context.Context, namespace, key string, fields Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.bucketLocked(namespace)
	bucket[key] = bucket[key].Merge(fields)
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces[namespace], key)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) bucketLocked(namespace string) map[string]Record {
	bucket, ok := s.namespaces[namespace]
	if !ok {
		bucket = make(map[string]Record)
		s.namespaces[namespace] = bucket
	}
	return bucket
}
