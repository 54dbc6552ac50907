package provider

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const mediaCachePrefix = "voicedrop:media:"

// MediaCache remembers provider media references per source audio so retried
// dispatches do not upload the same file twice.
type MediaCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, ref string) error
}

type RedisMediaCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisMediaCache(client redis.Cmdable, ttl time.Duration) *RedisMediaCache {
	return &RedisMediaCache{client: client, ttl: ttl}
}

func (c *RedisMediaCache) Get(ctx context.Context, key string) (string, bool, error) {
	ref, err := c.client.Get(ctx, mediaCachePrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return ref, true, nil
}

func (c *RedisMediaCache) Set(ctx context.Context, key, ref string) error {
	return c.client.Set(ctx, mediaCachePrefix+key, ref, c.ttl).Err()
}
