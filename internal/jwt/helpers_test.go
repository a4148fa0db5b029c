package jwt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testIssuer = "https://auth.example.test"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// newTestKeyStore devuelve un KeyStore en memoria ya bootstrappeado.
func newTestKeyStore(t *testing.T, clock *fakeClock, grace time.Duration) *KeyStore {
	t.Helper()
	ks := NewKeyStore(NewMemorySigningKeyStore(), KeyStoreConfig{Grace: grace, Now: clock.Now})
	require.NoError(t, ks.EnsureBootstrap(context.Background()))
	return ks
}
