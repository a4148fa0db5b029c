// Package cache abstrae un cache key/value con TTL.
//
// Backends:
//   - memory: in-process (go-cache), para dev y un solo réplica
//   - redis: compartido entre réplicas de un resource service, así una
//     flota entera hace un solo fetch del JWKS por TTL
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound indica key inexistente o expirada.
var ErrNotFound = errors.New("cache: key not found")

// Client define las operaciones de cache.
type Client interface {
	// Get devuelve ErrNotFound si no existe o expiró.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set guarda con TTL; ttl <= 0 usa el default del backend.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Config para construir un Client.
type Config struct {
	Driver     string // memory | redis
	Addr       string
	Password   string
	DB         int
	Prefix     string
	DefaultTTL time.Duration
}

// New crea el cliente según Driver ("" = memory).
func New(ctx context.Context, cfg Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemory(cfg.Prefix, cfg.DefaultTTL), nil
	case "redis":
		return NewRedis(ctx, cfg)
	default:
		return nil, fmt.Errorf("cache: driver %q no soportado", cfg.Driver)
	}
}

func prefixed(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}
