// Package rate implementa rate limiting fixed-window para el login.
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

func windowKey(prefix, key string, winStart time.Time) string {
	return fmt.Sprintf("%s%s:%d", prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())
}

func result(hits, max int64, winEnd, now time.Time) Result {
	remaining := max - hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{Allowed: hits <= max, Remaining: remaining, CurrentHits: hits}
	if !res.Allowed {
		// resto de la ventana, mínimo 1s para el header Retry-After
		res.RetryAfter = winEnd.Sub(now)
		if res.RetryAfter < time.Second {
			res.RetryAfter = time.Second
		}
	}
	return res
}

// RedisLimiter: fixed window compartido entre réplicas (INCR + EXPIRE).
type RedisLimiter struct {
	Client *rdb.Client
	Prefix string
	Max    int64
	Window time.Duration
	Now    func() time.Time
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{Client: client, Prefix: prefix, Max: int64(max), Window: window, Now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.Now().UTC()
	winStart := now.Truncate(l.Window)
	k := windowKey(l.Prefix, key, winStart)

	pipe := l.Client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, l.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate: redis: %w", err)
	}
	return result(incr.Val(), l.Max, winStart.Add(l.Window), now), nil
}
