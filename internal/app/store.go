package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/gobd-ledger/internal/compliance"
	"github.com/odyssey-erp/gobd-ledger/internal/platform/db"
	"github.com/odyssey-erp/gobd-ledger/internal/store/postgres"
	"github.com/odyssey-erp/gobd-ledger/internal/store/sqlite"
)

// StoreHandle is an opened and migrated compliance store.
type StoreHandle struct {
	Store compliance.Store
	Ping  func(ctx context.Context) error
	Close func()
}

// OpenStore connects the configured driver and applies the schema.
func OpenStore(ctx context.Context, cfg *Config, logger *slog.Logger) (*StoreHandle, error) {
	switch cfg.StoreDriver {
	case DriverPostgres:
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := postgres.New(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("store ready", slog.String("driver", DriverPostgres))
		return &StoreHandle{Store: store, Ping: store.Ping, Close: pool.Close}, nil
	case DriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		logger.Info("store ready", slog.String("driver", DriverSQLite), slog.String("path", store.Path()))
		return &StoreHandle{
			Store: store,
			Ping:  store.Ping,
			Close: func() {
				if err := store.Close(); err != nil {
					logger.Warn("close sqlite", slog.Any("error", err))
				}
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
