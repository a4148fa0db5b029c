package jwt

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemorySigningKeyStore guarda las claves en memoria (dev/tests y resource
// services que no persisten nada).
type MemorySigningKeyStore struct {
	mu   sync.Mutex
	list []SigningKey
}

func NewMemorySigningKeyStore() *MemorySigningKeyStore { return &MemorySigningKeyStore{} }

func (m *MemorySigningKeyStore) ListSigningKeys(ctx context.Context) ([]SigningKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SigningKey, len(m.list))
	copy(out, m.list)
	sortKeys(out)
	return out, nil
}

func (m *MemorySigningKeyStore) InsertSigningKey(ctx context.Context, k *SigningKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.list {
		if e.KID == k.KID {
			return ErrSigningKeyExists
		}
		if k.Status == KeyActive && e.Status == KeyActive {
			return ErrMultipleActiveKeys
		}
	}
	m.list = append(m.list, *k)
	return nil
}

func (m *MemorySigningKeyStore) RotateSigningKey(ctx context.Context, next *SigningKey, rotatedAt, retireAfter time.Time) (*SigningKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var prev *SigningKey
	for i := range m.list {
		if m.list[i].KID == next.KID {
			return nil, ErrSigningKeyExists
		}
	}
	for i := range m.list {
		k := &m.list[i]
		if k.Status != KeyActive {
			continue
		}
		k.Status = KeyRetiring
		k.RotatedAt = rotatedAt
		k.RetireAfter = retireAfter
		cp := *k
		prev = &cp
	}

	nk := *next
	nk.Status = KeyActive
	m.list = append(m.list, nk)
	return prev, nil
}

func (m *MemorySigningKeyStore) RetireSigningKeys(ctx context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kids []string
	for i := range m.list {
		k := &m.list[i]
		if k.Status == KeyRetiring && !now.Before(k.RetireAfter) {
			k.Status = KeyRetired
			k.PrivateKey = nil
			kids = append(kids, k.KID)
		}
	}
	return kids, nil
}

// sortKeys ordena active primero y luego por kid descendente (más nuevo primero).
func sortKeys(keys []SigningKey) {
	rank := func(s KeyStatus) int {
		switch s {
		case KeyActive:
			return 0
		case KeyRetiring:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		if ri, rj := rank(keys[i].Status), rank(keys[j].Status); ri != rj {
			return ri < rj
		}
		return keys[i].KID > keys[j].KID
	})
}
