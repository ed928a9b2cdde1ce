package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clinicboard/gatekeeper/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewClient connects to Redis, which backs the ephemeral captcha store
// and the session revocation broadcast channel
func NewClient(cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}

	logger.Info("redis connection established", slog.String("addr", cfg.Addr))
	return client, nil
}
