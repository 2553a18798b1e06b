package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GoCodeAlone/todos/keygen"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSConfig holds connection settings for the nats backend.
type NATSConfig struct {
	URL string `yaml:"url" json:"url"`
	// Replicas is the replica count used when a bucket is created.
	Replicas int `yaml:"replicas" json:"replicas"`
}

// NATSStore keeps each namespace in its own JetStream key-value bucket.
// Buckets are created on first write.
type NATSStore struct {
	conn     *nats.Conn
	js       jetstream.JetStream
	keys     keygen.Generator
	replicas int

	mu      sync.Mutex
	buckets map[string]jetstream.KeyValue
}

// NewNATSStore connects to NATS and opens a JetStream context.
func NewNATSStore(cfg NATSConfig, keys keygen.Generator) (*NATSStore, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url, nats.Name("todos"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return &NATSStore{
		conn:     conn,
		js:       js,
		keys:     keys,
		replicas: cfg.Replicas,
		buckets:  make(map[string]jetstream.KeyValue),
	}, nil
}

// bucket returns the KV bucket for namespace. When create is false and the
// bucket does not exist, it returns jetstream.ErrBucketNotFound.
func (s *NATSStore) bucket(ctx context.Context, namespace string, create bool) (jetstream.KeyValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kv, ok := s.buckets[namespace]; ok {
		return kv, nil
	}

	kv, err := s.js.KeyValue(ctx, namespace)
	if err != nil && create && errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = s.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:   namespace,
			History:  1,
			Replicas: s.replicas,
		})
		if errors.Is(err, jetstream.ErrBucketExists) {
			// Another process created it between the lookup and the create.
			kv, err = s.js.KeyValue(ctx, namespace)
		}
	}
	if err != nil {
		return nil, err
	}
	s.buckets[namespace] = kv
	return kv, nil
}

func (s *NATSStore) Insert(ctx context.Context, namespace string, rec Record) (string, error) {
	key := s.keys.NewKey()
	kv, err := s.bucket(ctx, namespace, true)
	if err != nil {
		return "", backendErr(OpInsert, namespace, key, err)
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return "", backendErr(OpInsert, namespace, key, err)
	}
	if _, err := kv.Create(ctx, key, data); err != nil {
		return "", backendErr(OpInsert, namespace, key, err)
	}
	return key, nil
}

// FetchAll reads the current value of every key through a single watcher.
// The watcher delivers the bucket's initial values followed by a nil entry.
func (s *NATSStore) FetchAll(ctx context.Context, namespace string) ([]Entry, error) {
	kv, err := s.bucket(ctx, namespace, false)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, backendErr(OpFetchAll, namespace, "", err)
	}

	watcher, err := kv.WatchAll(ctx, jetstream.IgnoreDeletes())
	if err != nil {
		return nil, backendErr(OpFetchAll, namespace, "", err)
	}
	defer func() { _ = watcher.Stop() }()

	var entries []Entry
	for {
		select {
		case <-ctx.Done():
			return nil, backendErr(OpFetchAll, namespace, "", ctx.Err())
		case entry, ok := <-watcher.Updates():
			if !ok {
				return nil, backendErr(OpFetchAll, namespace, "", errors.New("kv watcher closed"))
			}
			if entry == nil {
				if len(entries) == 0 {
					return nil, ErrNotFound
				}
				sortEntries(entries)
				return entries, nil
			}
			rec, err := decodeRecord(entry.Value())
			if err != nil {
				return nil, backendErr(OpFetchAll, namespace, entry.Key(), err)
			}
			entries = append(entries, Entry{Key: entry.Key(), Record: rec})
		}
	}
}

// UpdateFields reads the current value, merges and writes it back. Concurrent
// writers to the same key are last-writer-wins.
func (s *NATSStore) UpdateFields(ctx context.Context, namespace, key string, fields Record) error {
	kv, err := s.bucket(ctx, namespace, true)
	if err != nil {
		return backendErr(OpUpdateFields, namespace, key, err)
	}

	current := Record{}
	entry, err := kv.Get(ctx, key)
	switch {
	case err == nil:
		if current, err = decodeRecord(entry.Value()); err != nil {
			return backendErr(OpUpdateFields, namespace, key, err)
		}
	case !errors.Is(err, jetstream.ErrKeyNotFound):
		return backendErr(OpUpdateFields, namespace, key, err)
	}

	data, err := encodeRecord(current.Merge(fields))
	if err != nil {
		return backendErr(OpUpdateFields, namespace, key, err)
	}
	_, err = kv.Put(ctx, key, data)
	return backendErr(OpUpdateFields, namespace, key, err)
}

func (s *NATSStore) Remove(ctx context.Context, namespace, key string) error {
	kv, err := s.bucket(ctx, namespace, false)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil
	}
	if err != nil {
		return backendErr(OpRemove, namespace, key, err)
	}
	err = kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return backendErr(OpRemove, namespace, key, err)
}

// Close drains the NATS connection.
func (s *NATSStore) Close() error {
	return s.conn.Drain()
}
