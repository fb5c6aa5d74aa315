package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sokhunov/Distribution-Interface/internal/platform/cache"
	"github.com/sokhunov/Distribution-Interface/internal/platform/db"
	"github.com/sokhunov/Distribution-Interface/internal/shared"
	"github.com/sokhunov/Distribution-Interface/internal/warehouse"
)

// OpenWarehouse connects the configured warehouse driver. The returned closer
// releases the underlying pool or file handle.
func OpenWarehouse(ctx context.Context, cfg *Config) (warehouse.Store, func(), error) {
	switch cfg.WarehouseDriver {
	case DriverSQLite:
		store, err := warehouse.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case DriverPostgres, "":
		pool, err := db.New(ctx, db.Config{DSN: cfg.PGDSN, ApplicationName: "distsync"})
		if err != nil {
			return nil, nil, shared.Store("connect postgres", err)
		}
		return warehouse.NewPostgresStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("app: unknown warehouse driver %q", cfg.WarehouseDriver)
	}
}

// OpenRunLock connects redis when configured. Without REDIS_ADDR the lock
// grants every run.
func OpenRunLock(ctx context.Context, cfg *Config, logger *slog.Logger) (*shared.RunLock, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		logger.Debug("redis not configured, run lock disabled")
		return nil, func() {}, nil
	}
	closer := func() {
		if err := client.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}
	return shared.NewRunLock(client, cfg.LockTTL), closer, nil
}
