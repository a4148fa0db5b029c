package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisClient struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
	owned      bool
}

// NewRedis abre una conexión y verifica con PING.
func NewRedis(ctx context.Context, cfg Config) (Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}
	return &redisClient{client: rdb, prefix: cfg.Prefix, defaultTTL: cfg.DefaultTTL, owned: true}, nil
}

// WrapRedis reutiliza un cliente existente (compartido con el rate limiter).
// Close no cierra el cliente subyacente.
func WrapRedis(rdb *redis.Client, prefix string, defaultTTL time.Duration) Client {
	return &redisClient{client: rdb, prefix: prefix, defaultTTL: defaultTTL}
}

func (c *redisClient) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, prefixed(c.prefix, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (c *redisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.client.Set(ctx, prefixed(c.prefix, key), value, ttl).Err()
}

func (c *redisClient) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, prefixed(c.prefix, key)).Err()
}

func (c *redisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *redisClient) Close() error {
	if !c.owned {
		return nil
	}
	return c.client.Close()
}
