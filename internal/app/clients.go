package app

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teknokomo/universo-platformo-backend/internal/pkg/logger"
)

// newRedisClient returns nil when no address is configured; the status cache
// is optional and every consumer is nil-safe.
func newRedisClient(cfg Config, log *logger.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		log.Info("Redis not configured, status cache disabled")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("Redis ping failed, status cache disabled", "error", err)
		return nil
	}
	log.Info("Redis connected", "addr", cfg.RedisAddr)
	return client
}
