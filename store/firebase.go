package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"github.com/GoCodeAlone/todos/keygen"
	"google.golang.org/api/option"
)

// FirebaseConfig holds settings for the Firebase Realtime Database backend.
// When FIREBASE_DATABASE_EMULATOR_HOST is set the SDK talks to the emulator.
type FirebaseConfig struct {
	DatabaseURL     string `yaml:"database_url" json:"database_url"`
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
}

// FirebaseStore keeps each namespace as a child of the database root and each
// record as a child of its namespace. The database does not persist empty
// objects, so a record with no fields reads back as absent.
type FirebaseStore struct {
	client *db.Client
	keys   keygen.Generator
}

// NewFirebaseStore initializes a Firebase app and its database client.
func NewFirebaseStore(ctx context.Context, cfg FirebaseConfig, keys keygen.Generator) (*FirebaseStore, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("firebase: database url is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: cfg.DatabaseURL}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase: init app: %w", err)
	}
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: init database client: %w", err)
	}
	return &FirebaseStore{client: client, keys: keys}, nil
}

func (s *FirebaseStore) Insert(ctx context.Context, namespace string, rec Record) (string, error) {
	key := s.keys.NewKey()
	err := s.client.NewRef(namespace).Child(key).Set(ctx, map[string]any(rec.WithoutNulls()))
	if err != nil {
		return "", backendErr(OpInsert, namespace, key, err)
	}
	return key, nil
}

func (s *FirebaseStore) FetchAll(ctx context.Context, namespace string) ([]Entry, error) {
	nodes, err := s.client.NewRef(namespace).OrderByKey().GetOrdered(ctx)
	if err != nil {
		return nil, backendErr(OpFetchAll, namespace, "", err)
	}
	entries := make([]Entry, 0, len(nodes))
	for _, node := range nodes {
		var raw json.RawMessage
		if err := node.Unmarshal(&raw); err != nil {
			return nil, backendErr(OpFetchAll, namespace, node.Key(), err)
		}
		v, err := decodeValue(raw)
		if err != nil {
			return nil, backendErr(OpFetchAll, namespace, node.Key(), err)
		}
		rec, ok := FromValue(v)
		if !ok {
			// A scalar child is not a record; List and Count both leave it out.
			continue
		}
		entries = append(entries, Entry{Key: node.Key(), Record: rec})
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries, nil
}

// UpdateFields performs a shallow multi-path update, in which a null value
// deletes its child. The SDK rejects an empty update map, and an empty merge
// changes nothing, so it is skipped.
func (s *FirebaseStore) UpdateFields(ctx context.Context, namespace, key string, fields Record) error {
	if len(fields) == 0 {
		return nil
	}
	err := s.client.NewRef(namespace).Child(key).Update(ctx, map[string]interface{}(fields.Clone()))
	return backendErr(OpUpdateFields, namespace, key, err)
}

func (s *FirebaseStore) Remove(ctx context.Context, namespace, key string) error {
	err := s.client.NewRef(namespace).Child(key).Delete(ctx)
	return backendErr(OpRemove, namespace, key, err)
}

// Close is a no-op; the database client is stateless HTTP.
func (s *FirebaseStore) Close() error { return nil }
