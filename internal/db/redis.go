package db

import (
	"context"
	"time"

	"backend-stride/internal/config"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns nil when no address is configured; the event hub then
// only serves clients connected to this process.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

func PingRedis(client *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "ping redis")
	}
	return nil
}
