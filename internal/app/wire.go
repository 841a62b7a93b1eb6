package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/bancorprotocol/bancor-arbitrage/internal/blob/s3"
	"github.com/bancorprotocol/bancor-arbitrage/internal/cache/redis"
	"github.com/bancorprotocol/bancor-arbitrage/internal/config"
	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
	"github.com/bancorprotocol/bancor-arbitrage/internal/service"
	"github.com/bancorprotocol/bancor-arbitrage/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Persistence (nil in exec mode)
	SettlementStore domain.SettlementStore
	ParamStore      domain.ParamStore

	// Coordination (nil in exec mode)
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	// Blob storage (nil unless S3 archiving is enabled)
	Archiver domain.Archiver

	// Execution
	Exec *service.ExecutionService

	// Checks probe the liveness of wired infrastructure, keyed by component
	// name for the health endpoint.
	Checks map[string]func(context.Context) error
}

// needsInfra returns true for modes that require Postgres and Redis. Exec mode
// runs the engine standalone: no persistence, no distributed lock.
func needsInfra(mode string) bool {
	return strings.ToLower(mode) == "serve"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that must
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	deps := &Dependencies{Checks: make(map[string]func(context.Context) error)}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if needsInfra(cfg.Mode) {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
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
			return nil, nil, fmt.Errorf("app: postgres: %w", err)
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("app: migrations: %w", err)
			}
		}

		deps.SettlementStore = postgres.NewSettlementStore(pg.Pool())
		deps.ParamStore = postgres.NewParamStore(pg.Pool())
		deps.Checks["postgres"] = pg.Pool().Ping

		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.LockManager = redis.NewLockManager(rc)
		deps.SignalBus = redis.NewSignalBus(rc)
		deps.RateLimiter = redis.NewRateLimiter(rc)
		deps.Checks["redis"] = rc.Ping

		if cfg.S3.Enabled {
			s3c, err := s3blob.New(ctx, s3blob.ClientConfig{
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
				return nil, nil, fmt.Errorf("app: s3: %w", err)
			}
			closers = append(closers, func() { _ = s3c.Close() })

			writer := s3blob.NewWriter(s3c)
			deps.Archiver = s3blob.NewSettlementArchiver(writer, deps.SettlementStore, cfg.S3.Prefix, logger)
			deps.Checks["s3"] = s3c.Health
		}
	}

	engine, err := buildEngine(ctx, cfg, deps, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("app: topology: %w", err)
	}

	admin := common.HexToAddress(cfg.Engine.Admin)
	deps.Exec = service.NewExecutionService(engine, deps.LockManager, deps.SettlementStore, admin, logger)

	return deps, cleanup, nil
}
