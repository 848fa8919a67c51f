// internal/catalog/redis_store.go
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lender-match-workers/internal/models"
)

const DefaultCacheKey = "lender:products:v1"

// cacheEnvelope is the JSON written under the cache key. "at" is unix millis.
type cacheEnvelope struct {
	At     int64                  `json:"at"`
	Source string                 `json:"source"`
	Data   []models.LenderProduct `json:"data"`
}

// RedisStore keeps the catalog snapshot in a single Redis key. The key expires
// after expiry, which bounds how stale a fallback snapshot can get.
type RedisStore struct {
	client redis.Cmdable
	key    string
	expiry time.Duration
}

func NewRedisStore(client redis.Cmdable, key string, expiry time.Duration) *RedisStore {
	if key == "" {
		key = DefaultCacheKey
	}
	return &RedisStore{client: client, key: key, expiry: expiry}
}

func (s *RedisStore) Load(ctx context.Context) (*models.CatalogSnapshot, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	var env cacheEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// A corrupt entry is as good as none.
		return nil, ErrCacheMiss
	}
	return &models.CatalogSnapshot{
		Products:  env.Data,
		FetchedAt: time.UnixMilli(env.At),
		Source:    env.Source,
	}, nil
}

func (s *RedisStore) Save(ctx context.Context, snap *models.CatalogSnapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	env := cacheEnvelope{
		At:     snap.FetchedAt.UnixMilli(),
		Source: snap.Source,
		Data:   snap.Products,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, payload, s.expiry).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}
