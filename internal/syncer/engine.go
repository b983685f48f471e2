// Package syncer decides when the locally cached ledger snapshot is stale and
// replaces it. Version-token equality against the remote gateway is the sole
// staleness criterion; record contents are never diffed.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mingfai/stockledger/internal/domain"
)

// Dataset is the result of one refresh: the record set in effect plus flags
// describing how it was obtained.
type Dataset struct {
	Version domain.VersionToken
	Records []domain.OrderRecord
	// Changed reports that the records were fetched fresh from the gateway,
	// so downstream projections must be rebuilt.
	Changed bool
	// Stale reports that the gateway failed and the records come from the
	// last good snapshot.
	Stale bool
}

// Engine owns the cache envelope: it is the only writer of the in-memory and
// durable snapshot.
type Engine struct {
	gw     domain.Gateway
	store  domain.SnapshotStore
	logger *slog.Logger

	group singleflight.Group

	mu     sync.Mutex
	env    domain.CacheEnvelope
	cached bool // env holds a loaded or fetched snapshot
	warmed bool // durable store has been consulted
}

// New creates an Engine over the given gateway and durable snapshot store.
func New(gw domain.Gateway, store domain.SnapshotStore, logger *slog.Logger) *Engine {
	return &Engine{
		gw:     gw,
		store:  store,
		logger: logger.With(slog.String("component", "syncer")),
	}
}

// Refresh returns the current dataset. When the remote version token equals
// the cached one and force is false, the cached records are returned without
// a network fetch. Otherwise the full record set is fetched and committed to
// memory and the durable store.
//
// If the gateway fails and a previous snapshot exists, that snapshot is
// returned together with a non-fatal error wrapping domain.ErrStaleData;
// without a previous snapshot the failure is fatal. Concurrent calls collapse
// into a single gateway probe.
func (e *Engine) Refresh(ctx context.Context, force bool) (Dataset, error) {
	key := "refresh"
	if force {
		key = "refresh-force"
	}
	v, err, _ := e.group.Do(key, func() (any, error) {
		return e.refresh(ctx, force)
	})
	ds, _ := v.(Dataset)
	return ds, err
}

func (e *Engine) refresh(ctx context.Context, force bool) (Dataset, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.warmUp(ctx)

	version, err := e.gw.Version(ctx)
	if err != nil {
		return e.fallback("get version", err)
	}

	if !force && e.cached && e.env.Version == version {
		e.logger.DebugContext(ctx, "snapshot current, skipping fetch",
			slog.String("version", string(version)),
		)
		return Dataset{Version: e.env.Version, Records: e.env.Records}, nil
	}

	records, err := e.gw.AllRecords(ctx)
	if err != nil {
		return e.fallback("get all records", err)
	}

	env := domain.CacheEnvelope{
		Version:   version,
		Records:   records,
		FetchedAt: time.Now().UTC(),
	}
	e.env = env
	e.cached = true

	// The in-memory copy stays authoritative for this session even when the
	// durable write fails; the snapshot is only a warm-start optimization.
	if err := e.store.Save(ctx, env); err != nil {
		e.logger.WarnContext(ctx, "snapshot save failed",
			slog.String("version", string(version)),
			slog.String("error", err.Error()),
		)
	}

	e.logger.InfoContext(ctx, "snapshot updated",
		slog.String("version", string(version)),
		slog.Int("records", len(records)),
		slog.Bool("forced", force),
	)
	return Dataset{Version: version, Records: records, Changed: true}, nil
}

// Clear drops the in-memory snapshot and removes the durable one, so the
// next Refresh starts cold and must reach the gateway.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.env = domain.CacheEnvelope{}
	e.cached = false
	e.warmed = true

	if err := e.store.Clear(ctx); err != nil {
		return fmt.Errorf("syncer: clear snapshot: %w", err)
	}
	return nil
}

// warmUp loads the durable snapshot into memory once, on the first refresh of
// the session. Absence or a failed load is tolerated.
func (e *Engine) warmUp(ctx context.Context) {
	if e.warmed {
		return
	}
	e.warmed = true

	env, err := e.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNoSnapshot) {
			e.logger.WarnContext(ctx, "snapshot load failed",
				slog.String("error", err.Error()),
			)
		}
		return
	}
	e.env = env
	e.cached = true
	e.logger.InfoContext(ctx, "snapshot loaded from store",
		slog.String("version", string(env.Version)),
		slog.Int("records", len(env.Records)),
	)
}

// fallback serves the last good snapshot after a gateway failure, or
// propagates the failure when none exists.
func (e *Engine) fallback(op string, cause error) (Dataset, error) {
	if !e.cached {
		return Dataset{}, fmt.Errorf("syncer: %s: %w", op, cause)
	}
	return Dataset{Version: e.env.Version, Records: e.env.Records, Stale: true},
		fmt.Errorf("syncer: %s failed, %w (version %s): %v", op, domain.ErrStaleData, e.env.Version, cause)
}
