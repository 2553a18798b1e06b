package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/GoCodeAlone/todos/keygen"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendNATS     = "nats"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
	BackendFirebase = "firebase"
)

// Backends lists every backend name Open understands.
var Backends = []string{
	BackendMemory,
	BackendRedis,
	BackendNATS,
	BackendSQLite,
	BackendPostgres,
	BackendDynamoDB,
	BackendFirebase,
}

// Options selects and configures a backend.
type Options struct {
	Backend  string         `yaml:"backend" json:"backend"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	NATS     NATSConfig     `yaml:"nats" json:"nats"`
	SQLite   SQLiteConfig   `yaml:"sqlite" json:"sqlite"`
	Postgres PGConfig       `yaml:"postgres" json:"postgres"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb" json:"dynamodb"`
	Firebase FirebaseConfig `yaml:"firebase" json:"firebase"`
}

// Open connects to the backend named in opts.Backend. The caller owns the
// returned store and must Close it.
func Open(ctx context.Context, opts Options, keys keygen.Generator, logger *slog.Logger) (CollectionStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	backend := opts.Backend
	if backend == "" {
		backend = BackendMemory
	}

	var (
		s   CollectionStore
		err error
	)
	switch backend {
	case BackendMemory:
		s = NewMemoryStore(keys)
	case BackendRedis:
		s, err = NewRedisStore(ctx, opts.Redis, keys)
	case BackendNATS:
		s, err = NewNATSStore(opts.NATS, keys)
	case BackendSQLite:
		path := opts.SQLite.Path
		if path == "" {
			path = ":memory:"
		}
		s, err = NewSQLiteStore(path, keys)
	case BackendPostgres:
		s, err = NewPGStore(ctx, opts.Postgres, keys)
	case BackendDynamoDB:
		s, err = NewDynamoDBStore(ctx, opts.DynamoDB, keys)
	case BackendFirebase:
		s, err = NewFirebaseStore(ctx, opts.Firebase, keys)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", backend, err)
	}
	logger.Info("store opened", "backend", backend)
	return s, nil
}
