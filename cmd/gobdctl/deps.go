package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/gobd-ledger/internal/app"
	"github.com/odyssey-erp/gobd-ledger/internal/audit"
	"github.com/odyssey-erp/gobd-ledger/internal/compliance"
	"github.com/odyssey-erp/gobd-ledger/internal/platform/cache"
)

// withService loads configuration, opens the store and hands a compliance
// service to fn. Resources are released when fn returns.
func withService(ctx context.Context, fn func(svc *compliance.Service) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := app.NewLogger(cfg)

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Debug("redis unavailable", slog.Any("error", err))
	} else {
		redisClient = client
		defer redisClient.Close()
	}

	return fn(app.NewComplianceService(cfg, store.Store, redisClient, nil, logger))
}

func (f *globalFlags) auditContext() audit.Context {
	return audit.Context{UserID: f.user, SessionID: f.session}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
