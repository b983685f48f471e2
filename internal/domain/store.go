package domain

import "context"

// SnapshotStore persists the cache envelope across sessions. The record set
// and its version token are stored and cleared together, never independently,
// so a loaded envelope is always internally consistent.
//
// Implementations exist for Redis, PostgreSQL, and S3-compatible object
// storage; the engine works identically on any of them.
type SnapshotStore interface {
	// Load returns the stored envelope, or ErrNoSnapshot when none exists.
	Load(ctx context.Context) (CacheEnvelope, error)

	// Save overwrites the stored envelope whole.
	Save(ctx context.Context, env CacheEnvelope) error

	// Clear removes the stored envelope.
	Clear(ctx context.Context) error
}
