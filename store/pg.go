package store

import (
	"context"
	"fmt"
	"time"

	"github.com/GoCodeAlone/todos/keygen"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGConfig holds PostgreSQL connection configuration.
type PGConfig struct {
	URL             string `yaml:"url" json:"url"`
	MaxConns        int32  `yaml:"max_conns" json:"max_conns"`
	MinConns        int32  `yaml:"min_conns" json:"min_conns"`
	MaxConnIdleTime string `yaml:"max_conn_idle_time" json:"max_conn_idle_time"`
}

// PGStore keeps records as JSONB documents in a single records table.
type PGStore struct {
	pool *pgxpool.Pool
	keys keygen.Generator
}

// NewPGStore connects to PostgreSQL, applies migrations and returns a PGStore.
func NewPGStore(ctx context.Context, cfg PGConfig, keys keygen.Generator) (*PGStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse pg config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnIdleTime != "" {
		d, err := time.ParseDuration(cfg.MaxConnIdleTime)
		if err != nil {
			return nil, fmt.Errorf("parse max_conn_idle_time: %w", err)
		}
		poolCfg.MaxConnIdleTime = d
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	if err := NewMigrator(pool).Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate pg: %w", err)
	}
	return NewPGStoreWithPool(pool, keys), nil
}

// NewPGStoreWithPool creates a PGStore over an existing, migrated pool.
func NewPGStoreWithPool(pool *pgxpool.Pool, keys keygen.Generator) *PGStore {
	return &PGStore{pool: pool, keys: keys}
}

func (s *PGStore) Insert(ctx context.Context, namespace string, rec Record) (string, error) {
	key := s.keys.NewKey()
	data, err := encodeRecord(rec)
	if err != nil {
		return "", backendErr(OpInsert, namespace, key, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO records (namespace, key, data) VALUES ($1, $2, $3::jsonb)`,
		namespace, key, string(data))
	if err != nil {
		return "", backendErr(OpInsert, namespace, key, err)
	}
	return key, nil
}

// FetchAll orders with the "C" collation so key order is bytewise regardless
// of the database locale.
func (s *PGStore) FetchAll(ctx context.Context, namespace string) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, data::text FROM records WHERE namespace = $1 ORDER BY key COLLATE "C"`, namespace)
	if err != nil {
		return nil, backendErr(OpFetchAll, namespace, "", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return nil, backendErr(OpFetchAll, namespace, "", err)
		}
		rec, err := decodeRecord([]byte(data))
		if err != nil {
			return nil, backendErr(OpFetchAll, namespace, key, err)
		}
		entries = append(entries, Entry{Key: key, Record: rec})
	}
	if err := rows.Err(); err != nil {
		return nil, backendErr(OpFetchAll, namespace, "", err)
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries, nil
}

// UpdateFields relies on jsonb concatenation, which replaces top-level keys
// present on the right and keeps the rest. Null fields are subtracted.
func (s *PGStore) UpdateFields(ctx context.Context, namespace, key string, fields Record) error {
	set, removed := splitNulls(fields)
	data, err := encodeRecord(set)
	if err != nil {
		return backendErr(OpUpdateFields, namespace, key, err)
	}
	if removed == nil {
		removed = []string{}
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO records (namespace, key, data) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (namespace, key) DO UPDATE SET data = (records.data || EXCLUDED.data) - $4::text[]
	`, namespace, key, string(data), removed)
	return backendErr(OpUpdateFields, namespace, key, err)
}

func (s *PGStore) Remove(ctx context.Context, namespace, key string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM records WHERE namespace = $1 AND key = $2`, namespace, key)
	return backendErr(OpRemove, namespace, key, err)
}

// Close closes the connection pool.
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}
