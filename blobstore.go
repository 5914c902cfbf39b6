package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// stateKey is the fixed key the whole AppState blob is stored under.
const stateKey = "healthApp_data"

// blobStore is an opaque key-value store. Set is always a total overwrite of
// one key; All returns every key in the store's namespace (used by export).
type blobStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
}

/* ─── In-memory ──────────────────────────────────────────────────────── */

type memoryBlobStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func newMemoryBlobStore() *memoryBlobStore {
	return &memoryBlobStore{data: map[string]string{}}
}

func (m *memoryBlobStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryBlobStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryBlobStore) All(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out, nil
}

/* ─── Postgres ───────────────────────────────────────────────────────── */

// kvRow maps to the kv_store table (see db/).
type kvRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

type pgBlobStore struct {
	db *pgxpool.Pool
}

func newPGBlobStore(pool *pgxpool.Pool) *pgBlobStore {
	return &pgBlobStore{db: pool}
}

func (s *pgBlobStore) Get(ctx context.Context, key string) (string, bool, error) {
	row, err := queryOne[kvRow](s.db, ctx,
		"SELECT key, value FROM kv_store WHERE key = @key",
		pgx.NamedArgs{"key": key})
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return row.Value, true, nil
}

// Set upserts so the write is a full overwrite of the key.
func (s *pgBlobStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO kv_store (key, value) VALUES (@key, @value)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		pgx.NamedArgs{"key": key, "value": value})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *pgBlobStore) All(ctx context.Context) (map[string]string, error) {
	rows, err := queryMany[kvRow](s.db, ctx, "SELECT key, value FROM kv_store ORDER BY key", nil)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

/* ─── Redis ──────────────────────────────────────────────────────────── */

// redisBlobStore keeps keys under "<namespace>:" so export only sees this
// application's data even on a shared Redis.
type redisBlobStore struct {
	rdb    *redis.Client
	prefix string
}

func newRedisBlobStore(rdb *redis.Client, namespace string) *redisBlobStore {
	return &redisBlobStore{rdb: rdb, prefix: namespace + ":"}
}

func (s *redisBlobStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *redisBlobStore) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *redisBlobStore) All(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan keys: %w", err)
		}
		for _, k := range keys {
			v, err := s.rdb.Get(ctx, k).Result()
			if errors.Is(err, redis.Nil) {
				// expired or deleted between SCAN and GET
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("get %s: %w", k, err)
			}
			out[strings.TrimPrefix(k, s.prefix)] = v
		}
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}
