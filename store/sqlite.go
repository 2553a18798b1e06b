package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/GoCodeAlone/todos/keygen"

	_ "modernc.org/sqlite"
)

// SQLiteConfig holds settings for the sqlite backend.
type SQLiteConfig struct {
	// Path is the database file. Use ":memory:" for an in-memory database.
	Path string `yaml:"path" json:"path"`
}

// SQLiteStore keeps all namespaces in a single records table. It is suitable
// for single-node deployments and local development.
type SQLiteStore struct {
	db   *sql.DB
	keys keygen.Generator
}

// NewSQLiteStore opens (or creates) the database at dsn and applies the
// schema.
func NewSQLiteStore(dsn string, keys keygen.Generator) (*SQLiteStore, error) {
	// Append pragmas to the DSN so they apply to every connection in the pool.
	if dsn != ":memory:" {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Limit to one open connection to serialize writes and avoid SQLITE_BUSY.
	// This also keeps a ":memory:" database alive for the store's lifetime.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, keys: keys}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	files, err := migrationFiles("migrations/sqlite")
	if err != nil {
		return err
	}
	for _, name := range files {
		content, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Insert(ctx context.Context, namespace string, rec Record) (string, error) {
	key := s.keys.NewKey()
	data, err := encodeRecord(rec)
	if err != nil {
		return "", backendErr(OpInsert, namespace, key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (namespace, key, data) VALUES (?, ?, ?)`,
		namespace, key, string(data))
	if err != nil {
		return "", backendErr(OpInsert, namespace, key, err)
	}
	return key, nil
}

// FetchAll relies on SQLite's default BINARY collation, which orders keys
// bytewise.
func (s *SQLiteStore) FetchAll(ctx context.Context, namespace string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, data FROM records WHERE namespace = ? ORDER BY key`, namespace)
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

// UpdateFields merges inside a transaction. The pool has a single connection,
// so the read and the write cannot interleave with another writer.
func (s *SQLiteStore) UpdateFields(ctx context.Context, namespace, key string, fields Record) error {
	return backendErr(OpUpdateFields, namespace, key, s.updateFields(ctx, namespace, key, fields))
}

func (s *SQLiteStore) updateFields(ctx context.Context, namespace, key string, fields Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	current := Record{}
	var data string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM records WHERE namespace = ? AND key = ?`, namespace, key).Scan(&data)
	switch {
	case err == nil:
		if current, err = decodeRecord([]byte(data)); err != nil {
			return err
		}
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	merged, err := encodeRecord(current.Merge(fields))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (namespace, key, data) VALUES (?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET data = excluded.data
	`, namespace, key, string(merged))
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Remove(ctx context.Context, namespace, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE namespace = ? AND key = ?`, namespace, key)
	return backendErr(OpRemove, namespace, key, err)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
