package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mingfai/stockledger/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using Redis with a JSON-
// serialized envelope and a separate version key for cheap inspection.
//
// Key schema:
//
//	{prefix}:snapshot:data    - JSON-encoded CacheEnvelope
//	{prefix}:snapshot:version - string value of the version token
//
// Both keys are written and deleted in one TxPipeline so the stored record
// set and its version never diverge.
type SnapshotStore struct {
	rdb    *redis.Client
	prefix string
}

// NewSnapshotStore creates a SnapshotStore backed by the given Client.
func NewSnapshotStore(c *Client, prefix string) *SnapshotStore {
	if prefix == "" {
		prefix = "stockledger"
	}
	return &SnapshotStore{rdb: c.rdb, prefix: prefix}
}

func (s *SnapshotStore) dataKey() string    { return s.prefix + ":snapshot:data" }
func (s *SnapshotStore) versionKey() string { return s.prefix + ":snapshot:version" }

// Load returns the stored envelope, or domain.ErrNoSnapshot when the key does
// not exist.
func (s *SnapshotStore) Load(ctx context.Context) (domain.CacheEnvelope, error) {
	data, err := s.rdb.Get(ctx, s.dataKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.CacheEnvelope{}, domain.ErrNoSnapshot
		}
		return domain.CacheEnvelope{}, fmt.Errorf("redis: load snapshot: %w", err)
	}

	var env domain.CacheEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.CacheEnvelope{}, fmt.Errorf("redis: unmarshal snapshot: %w", err)
	}
	return env, nil
}

// Save overwrites the stored envelope and version key together. Snapshots are
// stored without a TTL; they are superseded by the next Save or removed by
// Clear.
func (s *SnapshotStore) Save(ctx context.Context, env domain.CacheEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.dataKey(), data, 0)
	pipe.Set(ctx, s.versionKey(), string(env.Version), 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: save snapshot version %s: %w", env.Version, err)
	}
	return nil
}

// Clear removes the stored envelope and version key together.
func (s *SnapshotStore) Clear(ctx context.Context) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.dataKey())
	pipe.Del(ctx, s.versionKey())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: clear snapshot: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
