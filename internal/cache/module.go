package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/igefined/market-feed/internal/config"
)

const moduleName = "cache"

var Module = fx.Module(moduleName,
	fx.Provide(NewStore),
)

// NewStore picks the Redis store when REDIS_ADDR is configured and the
// in-memory store otherwise.
func NewStore(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (Store, error) {
	log := logger.Named(moduleName)

	if cfg.Redis.Addr == "" {
		log.Info("Using in-memory snapshot cache", zap.Duration("ttl", cfg.Market.CacheTTL))
		return NewMemory(cfg.Market.CacheTTL, nil), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     10,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
			}
			log.Info("Using redis snapshot cache",
				zap.String("addr", cfg.Redis.Addr),
				zap.Duration("ttl", cfg.Market.CacheTTL))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return NewRedis(client, cfg.Market.CacheTTL), nil
}
