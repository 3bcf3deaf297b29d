package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores ranked ID lists per user.
type Cache interface {
	Get(ctx context.Context, userID string) ([]string, bool, error)
	Set(ctx context.Context, userID string, ids []string) error
	Invalidate(ctx context.Context, userID string) error
}

// RedisCache keeps ranked ID lists in Redis as JSON arrays.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache returns a Cache backed by rdb whose entries expire after ttl.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func cacheKey(userID string) string {
	return "recommendations:" + userID
}

// Get returns the cached list for userID. A miss is (nil, false, nil).
func (c *RedisCache) Get(ctx context.Context, userID string) ([]string, bool, error) {
	val, err := c.rdb.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var ids []string
	if err := json.Unmarshal(val, &ids); err != nil {
		return nil, false, err
	}
	return ids, true, nil
}

// Set stores ids for userID.
func (c *RedisCache) Set(ctx context.Context, userID string, ids []string) error {
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, cacheKey(userID), b, c.ttl).Err()
}

// Invalidate drops the cached list for userID.
func (c *RedisCache) Invalidate(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, cacheKey(userID)).Err()
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) ([]string, bool, error) { return nil, false, nil }
func (nopCache) Set(context.Context, string, []string) error { return nil }
func (nopCache) Invalidate(context.Context, string) error { return nil }
