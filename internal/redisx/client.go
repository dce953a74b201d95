package redisx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// Cache is the slice of redis this service needs; having it as an
// interface lets the worker and handlers run against a fake in tests.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns "" with no error when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	// SetNX reports whether the key was newly set (false = duplicate).
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

type redisCache struct{ c *redis.Client }

func NewCache(c *redis.Client) Cache { return &redisCache{c: c} }

func (r *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.c.Set(ctx, key, value, ttl).Err()
}

func (r *redisCache) Get(ctx context.Context, key string) (string, error) {
	v, err := r.c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (r *redisCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.c.SetNX(ctx, key, value, ttl).Result()
}
