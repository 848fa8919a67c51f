// internal/common/database/redis.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lender-match-workers/internal/common/config"
	apperrors "lender-match-workers/internal/common/errors"
)

// RedisClient holds the connection behind the catalog snapshot cache.
type RedisClient struct {
	Client *redis.Client
}

func NewRedis(cfg config.RedisConfig) (*RedisClient, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address not configured")
	}
	return &RedisClient{Client: redis.NewClient(redisOptions(cfg))}, nil
}

// redisOptions sizes the pool for a handful of snapshot reads per job rather
// than a general purpose cache.
func redisOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return apperrors.NewDatabaseConnectionFailedError(fmt.Errorf("redis ping failed: %w", err)).
			WithMetadata("store", "redis")
	}
	return nil
}

// Del removes keys, used to drop a cached snapshot.
func (c *RedisClient) Del(ctx context.Context, keys ...string) error {
	return c.Client.Del(ctx, keys...).Err()
}

func (c *RedisClient) GetClient() *redis.Client {
	return c.Client
}

func (c *RedisClient) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
