package store

import (
	"context"
	"fmt"

	"onboarding-funnel/pkg/config"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Open builds the store selected by STORE_DRIVER.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.StoreTTL)
	case "sqlite":
		return OpenSQLite(cfg.StoreDSN)
	case "postgres":
		return OpenPostgres(ctx, cfg.StoreDSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
