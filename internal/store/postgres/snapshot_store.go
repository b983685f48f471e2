package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mingfai/stockledger/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using a single snapshots row
// per store name. The envelope is stored as JSONB next to its version column;
// an upsert replaces both atomically, which keeps the record set and the
// token it was fetched under consistent.
type SnapshotStore struct {
	pool *pgxpool.Pool
	name string
}

// NewSnapshotStore creates a SnapshotStore backed by the given connection
// pool. name distinguishes independent snapshot rows sharing one table.
func NewSnapshotStore(pool *pgxpool.Pool, name string) *SnapshotStore {
	if name == "" {
		name = "stockledger"
	}
	return &SnapshotStore{pool: pool, name: name}
}

// Load returns the stored envelope, or domain.ErrNoSnapshot when the row
// does not exist.
func (s *SnapshotStore) Load(ctx context.Context) (domain.CacheEnvelope, error) {
	const query = `SELECT envelope FROM snapshots WHERE name = $1`

	var data []byte
	err := s.pool.QueryRow(ctx, query, s.name).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CacheEnvelope{}, domain.ErrNoSnapshot
		}
		return domain.CacheEnvelope{}, fmt.Errorf("postgres: load snapshot %s: %w", s.name, err)
	}

	var env domain.CacheEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.CacheEnvelope{}, fmt.Errorf("postgres: unmarshal snapshot %s: %w", s.name, err)
	}
	return env, nil
}

// Save upserts the envelope and its version into the snapshot row.
func (s *SnapshotStore) Save(ctx context.Context, env domain.CacheEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot %s: %w", s.name, err)
	}

	const query = `
		INSERT INTO snapshots (name, version, envelope, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (name) DO UPDATE SET
			version    = EXCLUDED.version,
			envelope   = EXCLUDED.envelope,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, s.name, string(env.Version), data); err != nil {
		return fmt.Errorf("postgres: save snapshot %s version %s: %w", s.name, env.Version, err)
	}
	return nil
}

// Clear removes the snapshot row.
func (s *SnapshotStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM snapshots WHERE name = $1`, s.name); err != nil {
		return fmt.Errorf("postgres: clear snapshot %s: %w", s.name, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
