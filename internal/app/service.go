package app

import (
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/gobd-ledger/internal/compliance"
	"github.com/odyssey-erp/gobd-ledger/internal/platform/cache"
	"github.com/odyssey-erp/gobd-ledger/internal/shared"
)

// NewComplianceService wires the compliance core over store. Without a redis
// client concurrent backfill runs are not excluded.
func NewComplianceService(cfg *Config, store compliance.Store, redisClient *redis.Client, observer compliance.Observer, logger *slog.Logger) *compliance.Service {
	opts := []compliance.Option{compliance.WithLogger(logger)}
	if observer != nil {
		opts = append(opts, compliance.WithObserver(observer))
	}
	if redisClient != nil {
		ttl := cfg.BackfillLockTTL
		opts = append(opts, compliance.WithBackfillLock(func() compliance.Locker {
			return cache.NewMutex(redisClient, shared.ReferenceBackfillLockKey(), ttl)
		}))
	} else {
		logger.Warn("redis unavailable, backfill runs are not serialized")
	}
	return compliance.NewService(store, opts...)
}
