package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mingfai/stockledger/internal/aggregate"
	s3blob "github.com/mingfai/stockledger/internal/blob/s3"
	"github.com/mingfai/stockledger/internal/cache/redis"
	"github.com/mingfai/stockledger/internal/config"
	"github.com/mingfai/stockledger/internal/domain"
	"github.com/mingfai/stockledger/internal/ordernum"
	"github.com/mingfai/stockledger/internal/platform/kdocs"
	"github.com/mingfai/stockledger/internal/service"
	"github.com/mingfai/stockledger/internal/store/postgres"
	"github.com/mingfai/stockledger/internal/syncer"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Gateway domain.Gateway
	Store   domain.SnapshotStore
	Ledger  *service.LedgerService
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Remote ledger gateway ---
	deps.Gateway = kdocs.New(kdocs.Config{
		Endpoint: cfg.Gateway.Endpoint,
		Token:    cfg.Gateway.Token,
		Timeout:  cfg.Gateway.Timeout.Duration,
	})

	// --- Durable snapshot store ---
	switch strings.ToLower(cfg.Snapshot.Backend) {
	case "redis":
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Store = redis.NewSnapshotStore(redisClient, cfg.Snapshot.KeyPrefix)

	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if err := pgClient.CreateSchema(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres schema: %w", err)
		}
		deps.Store = postgres.NewSnapshotStore(pgClient.Pool(), cfg.Snapshot.KeyPrefix)

	case "s3":
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.Store = s3blob.NewSnapshotStore(s3Client, cfg.Snapshot.KeyPrefix)

	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown snapshot backend %q", cfg.Snapshot.Backend)
	}

	// --- Engine and consumer-facing service ---
	engine := syncer.New(deps.Gateway, deps.Store, logger)
	builder := aggregate.NewBuilder(cfg.Ledger.Markup, cfg.Ledger.InboundPrefix)
	generator := ordernum.New(cfg.Ledger.InboundPrefix, cfg.Ledger.OutboundPrefix, cfg.Ledger.SequenceWidth)

	deps.Ledger = service.New(engine, builder, generator, deps.Gateway, service.Policy{
		Markup:        cfg.Ledger.Markup,
		InboundPrefix: cfg.Ledger.InboundPrefix,
	}, logger)

	return deps, cleanup, nil
}
