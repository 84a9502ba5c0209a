package database

import (
	"context"
	"fmt"
	"time"

	"github.com/easytips/easytips/pkg/config"
	"github.com/easytips/easytips/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis opens the client used for verification codes. A failed ping is
// a warning, not a fatal: redis may come up after the API does.
func ConnectRedis(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis ping failed", "error", err)
	}

	return client, nil
}
