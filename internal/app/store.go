package app

import (
	"context"
	"errors"
	"fmt"

	"spotstore/config"
	"spotstore/internal/adapters/cache"
	"spotstore/internal/adapters/postgres"
	"spotstore/internal/adapters/sqlite"
	"spotstore/internal/ports"
)

// Store is the configured backend, optionally fronted by the Redis latest cache.
type Store struct {
	ports.BarRepository
	ports.LatestRepository

	backend ports.Store
	closers []func() error
}

var _ ports.Store = (*Store)(nil)

// Migrate creates the backend schema objects.
func (s *Store) Migrate(ctx context.Context) error {
	return s.backend.Migrate(ctx)
}

// Close releases the cache client and the database handle.
func (s *Store) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	errs = append(errs, s.backend.Close())
	return errors.Join(errs...)
}

// OpenStore builds the backend selected by cfg.StoreDriver.
func OpenStore(ctx context.Context, cfg *config.Config, logger ports.Logger) (*Store, error) {
	if cfg == nil || logger == nil {
		return nil, fmt.Errorf("config and logger are required: %w", ports.ErrConfigurationError)
	}

	var backend ports.Store
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		repo, err := sqlite.NewRepository(sqlite.Config{
			DBPath:         cfg.DBPath,
			Logger:         logger,
			BarInterval:    cfg.BarInterval,
			LatestInterval: cfg.LatestInterval,
		})
		if err != nil {
			return nil, err
		}
		backend = repo
	case config.DriverPostgres:
		repo, err := postgres.NewRepository(ctx, postgres.Config{
			DSN:            cfg.PostgresDSN,
			Schema:         cfg.PostgresSchema,
			MaxOpenConns:   cfg.PostgresMaxOpenConns,
			Logger:         logger,
			BarInterval:    cfg.BarInterval,
			LatestInterval: cfg.LatestInterval,
		})
		if err != nil {
			return nil, err
		}
		backend = repo
	default:
		return nil, fmt.Errorf("unknown store driver %q: %w", cfg.StoreDriver, ports.ErrConfigurationError)
	}

	store := &Store{
		BarRepository:    backend,
		LatestRepository: backend,
		backend:          backend,
	}

	if cfg.CacheEnabled() {
		client, err := cache.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("%w: %w", ports.ErrConfigurationError, err)
		}
		store.LatestRepository = cache.NewLatestCache(backend, client, cfg.LatestInterval.LatestTable(), cfg.RedisTTL, logger)
		store.closers = append(store.closers, client.Close)
		logger.Info(ctx, "Latest cache enabled", map[string]interface{}{"addr": cfg.RedisAddr, "ttl": cfg.RedisTTL.String()})
	}

	return store, nil
}
