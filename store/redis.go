package store

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/todos/keygen"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of go-redis client methods used by RedisStore.
// Keeping it as an interface lets tests hand in any client.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	ZRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Close() error
}

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Address  string `yaml:"address" json:"address"`
	Password string `yaml:"password" json:"password"` //nolint:gosec // config field
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// RedisStore keeps each namespace as a sorted set of keys (all scored 0, so
// Redis orders members lexicographically) and each record as a hash of
// JSON-encoded fields.
type RedisStore struct {
	client RedisClient
	keys   keygen.Generator
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, cfg RedisConfig, keys keygen.Generator) (*RedisStore, error) {
	opts := &redis.Options{
		Addr: cfg.Address,
		DB:   cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: ping failed: %w", cfg.Address, err)
	}
	return NewRedisStoreWithClient(client, cfg.Prefix, keys), nil
}

// NewRedisStoreWithClient creates a RedisStore backed by a pre-built client.
func NewRedisStoreWithClient(client RedisClient, prefix string, keys keygen.Generator) *RedisStore {
	return &RedisStore{client: client, keys: keys, prefix: prefix}
}

func (s *RedisStore) indexKey(namespace string) string {
	return s.prefix + namespace
}

func (s *RedisStore) recordKey(namespace, key string) string {
	return s.prefix + namespace + "/" + key
}

func (s *RedisStore) Insert(ctx context.Context, namespace string, rec Record) (string, error) {
	key := s.keys.NewKey()
	if err := s.write(ctx, namespace, key, rec); err != nil {
		return "", backendErr(OpInsert, namespace, key, err)
	}
	return key, nil
}

func (s *RedisStore) FetchAll(ctx context.Context, namespace string) ([]Entry, error) {
	keys, err := s.client.ZRange(ctx, s.indexKey(namespace), 0, -1).Result()
	if err != nil {
		return nil, backendErr(OpFetchAll, namespace, "", err)
	}
	if len(keys) == 0 {
		return nil, ErrNotFound
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.HGetAll(ctx, s.recordKey(namespace, k))
		}
		return nil
	})
	if err != nil {
		return nil, backendErr(OpFetchAll, namespace, "", err)
	}

	entries := make([]Entry, 0, len(keys))
	for i, k := range keys {
		rec, err := decodeFields(cmds[i].Val())
		if err != nil {
			return nil, backendErr(OpFetchAll, namespace, k, err)
		}
		entries = append(entries, Entry{Key: k, Record: rec})
	}
	return entries, nil
}

func (s *RedisStore) UpdateFields(ctx context.Context, namespace, key string, fields Record) error {
	return backendErr(OpUpdateFields, namespace, key, s.write(ctx, namespace, key, fields))
}

func (s *RedisStore) Remove(ctx context.Context, namespace, key string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(namespace, key))
		pipe.ZRem(ctx, s.indexKey(namespace), key)
		return nil
	})
	return backendErr(OpRemove, namespace, key, err)
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// write stores fields into the record hash and registers key in the
// namespace index, atomically. HSET only touches the named fields, which is
// what gives UpdateFields its merge semantics. Null fields are deleted.
func (s *RedisStore) write(ctx context.Context, namespace, key string, fields Record) error {
	set, removed := splitNulls(fields)
	encoded, err := encodeFields(set)
	if err != nil {
		return err
	}
	values := make(map[string]any, len(encoded))
	for name, v := range encoded {
		values[name] = v
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(values) > 0 {
			pipe.HSet(ctx, s.recordKey(namespace, key), values)
		}
		if len(removed) > 0 {
			pipe.HDel(ctx, s.recordKey(namespace, key), removed...)
		}
		pipe.ZAdd(ctx, s.indexKey(namespace), redis.Z{Score: 0, Member: key})
		return nil
	})
	return err
}
