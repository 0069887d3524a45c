package redisdb

import (
	"context"
	"fmt"
	"time"

	"github.com/Nzyazin/walletd/internal/core/logger"
	"github.com/Nzyazin/walletd/pkg/config"
	"github.com/redis/go-redis/v9"
)

// NewClient returns nil, nil when no address is configured.
func NewClient(cfg config.RedisConfig, log logger.Logger) (*redis.Client, error) {
	if cfg.Addr == "" {
		log.Warn("REDIS_ADDR not set, idempotency, rate limiting and events are disabled")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}

	log.Info("Connected to redis", logger.StringField("addr", cfg.Addr))
	return client, nil
}
