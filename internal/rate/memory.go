package rate

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter: misma semántica que RedisLimiter pero local al proceso.
type MemoryLimiter struct {
	Max    int64
	Window time.Duration
	Now    func() time.Time

	c *gocache.Cache
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		Max:    int64(max),
		Window: window,
		Now:    time.Now,
		c:      gocache.New(window, 2*window),
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.Now().UTC()
	winStart := now.Truncate(l.Window)
	k := windowKey("", key, winStart)

	// Add falla si ya existe; en ese caso incrementamos
	hits := int64(1)
	if err := l.c.Add(k, int64(1), l.Window); err != nil {
		n, err := l.c.IncrementInt64(k, 1)
		if err != nil {
			// expiró entre Add e Increment
			l.c.Set(k, int64(1), l.Window)
			n = 1
		}
		hits = n
	}
	return result(hits, l.Max, winStart.Add(l.Window), now), nil
}
