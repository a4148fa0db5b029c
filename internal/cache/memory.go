package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type memoryClient struct {
	prefix string
	c      *gocache.Cache
}

// NewMemory crea un cache in-process. defaultTTL 0 = sin expiración.
func NewMemory(prefix string, defaultTTL time.Duration) Client {
	if defaultTTL <= 0 {
		defaultTTL = gocache.NoExpiration
	}
	return &memoryClient{prefix: prefix, c: gocache.New(defaultTTL, time.Minute)}
}

func (m *memoryClient) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := m.c.Get(prefixed(m.prefix, key))
	if !ok {
		return nil, ErrNotFound
	}
	b, _ := v.([]byte)
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (m *memoryClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	b := make([]byte, len(value))
	copy(b, value)
	m.c.Set(prefixed(m.prefix, key), b, ttl)
	return nil
}

func (m *memoryClient) Delete(ctx context.Context, key string) error {
	m.c.Delete(prefixed(m.prefix, key))
	return nil
}

func (m *memoryClient) Ping(ctx context.Context) error { return nil }

func (m *memoryClient) Close() error {
	m.c.Flush()
	return nil
}
