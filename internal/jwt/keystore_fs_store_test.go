package jwt

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/jwkgate/internal/util/atomicwrite"
)

const testMasterKey = "test-master-key-0123456789abcdef"

func TestFileSigningKeyStore_PersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	clock := newFakeClock()

	store, err := NewFileSigningKeyStore(dir, testMasterKey)
	require.NoError(t, err)
	ks := NewKeyStore(store, KeyStoreConfig{Grace: time.Hour, Now: clock.Now})
	require.NoError(t, ks.EnsureBootstrap(ctx))
	first, _ := ks.CurrentSigningKey()

	second, err := ks.Rotate(ctx)
	require.NoError(t, err)

	// "reinicio": store y keystore nuevos sobre el mismo directorio
	store2, err := NewFileSigningKeyStore(dir, testMasterKey)
	require.NoError(t, err)
	ks2 := NewKeyStore(store2, KeyStoreConfig{Grace: time.Hour, Now: clock.Now})
	require.NoError(t, ks2.EnsureBootstrap(ctx))

	cur, err := ks2.CurrentSigningKey()
	require.NoError(t, err)
	require.Equal(t, second, cur.KID)
	require.NotNil(t, cur.PrivateKey)
	require.Equal(t, []string{second, first.KID}, ks2.PublicKeySet().KIDs())

	// un token firmado antes del reinicio verifica con el key set nuevo
	tok, err := NewIssuer(testIssuer, ks, time.Minute).Issue(Principal{Subject: "a", Roles: []string{"R"}}, clock.Now())
	require.NoError(t, err)
	_, err = NewVerifier(0).Verify(tok.Raw, ks2.PublicKeySet(), clock.Now(), testIssuer)
	require.NoError(t, err)
}

func TestFileSigningKeyStore_PrivateKeyEncryptedAndDroppedOnRetire(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	clock := newFakeClock()

	store, err := NewFileSigningKeyStore(dir, testMasterKey)
	require.NoError(t, err)
	ks := NewKeyStore(store, KeyStoreConfig{Grace: time.Minute, Now: clock.Now})
	require.NoError(t, ks.EnsureBootstrap(ctx))
	old, _ := ks.CurrentSigningKey()

	raw, err := os.ReadFile(filepath.Join(dir, old.KID+".json"))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "PRIVATE KEY")
	var kf keyFileData
	require.NoError(t, json.Unmarshal(raw, &kf))
	require.NotEmpty(t, kf.PrivateKeyEnc)

	_, err = ks.Rotate(ctx)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	n, err := ks.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	raw, err = os.ReadFile(filepath.Join(dir, old.KID+".json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &kf))
	require.Equal(t, KeyRetired, kf.Status)
	require.Empty(t, kf.PrivateKeyEnc)
}

func TestFileSigningKeyStore_WrongMasterKey(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileSigningKeyStore(dir, testMasterKey)
	require.NoError(t, err)
	require.NoError(t, NewKeyStore(store, KeyStoreConfig{Grace: time.Minute}).EnsureBootstrap(ctx))

	other, err := NewFileSigningKeyStore(dir, "another-master-key-abcdefghijklmn")
	require.NoError(t, err)
	_, err = other.ListSigningKeys(ctx)
	require.Error(t, err)

	_, err = NewFileSigningKeyStore(dir, "")
	require.Error(t, err)
}

func TestFileSigningKeyStore_RotateRollsBackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	clock := newFakeClock()

	store, err := NewFileSigningKeyStore(dir, testMasterKey)
	require.NoError(t, err)
	ks := NewKeyStore(store, KeyStoreConfig{Grace: time.Hour, Now: clock.Now})
	require.NoError(t, ks.EnsureBootstrap(ctx))
	old, err := ks.CurrentSigningKey()
	require.NoError(t, err)

	next, err := GenerateRSA(MinRSABits, clock.Now())
	require.NoError(t, err)
	store.write = func(path string, data []byte, perm fs.FileMode) error {
		if filepath.Base(path) == next.KID+".json" {
			return errors.New("no space left on device")
		}
		return atomicwrite.WriteFile(path, data, perm)
	}

	_, err = store.RotateSigningKey(ctx, next, clock.Now(), clock.Now().Add(time.Hour))
	require.Error(t, err)
	require.Contains(t, err.Error(), "save new active key")

	// la active anterior sigue en disco como active
	keys, err := store.ListSigningKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, old.KID, keys[0].KID)
	require.Equal(t, KeyActive, keys[0].Status)
	require.True(t, keys[0].RetireAfter.IsZero())

	require.NoError(t, ks.Reload(ctx))
	cur, err := ks.CurrentSigningKey()
	require.NoError(t, err)
	require.Equal(t, old.KID, cur.KID)
}

// Dos réplicas del auth service sobre el mismo directorio: la que no rotó
// sigue firmando con la clave vieja hasta su próximo reload, y esos tokens
// tienen que verificar hasta su exp mientras la gracia cubra
// token_ttl + reload_interval + clock_skew.
func TestFileSigningKeyStore_ReplicaSeesRotationAfterReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	clock := newFakeClock()

	const (
		ttl    = 15 * time.Minute
		reload = 10 * time.Second
		skew   = 30 * time.Second
	)
	grace := ttl + reload + skew

	open := func() *KeyStore {
		store, err := NewFileSigningKeyStore(dir, testMasterKey)
		require.NoError(t, err)
		return NewKeyStore(store, KeyStoreConfig{Grace: grace, ReloadInterval: reload, Now: clock.Now})
	}
	a, b := open(), open()
	require.NoError(t, a.EnsureBootstrap(ctx))
	require.NoError(t, b.EnsureBootstrap(ctx))
	old, _ := a.CurrentSigningKey()

	newKID, err := a.Rotate(ctx)
	require.NoError(t, err)

	// b todavía no releyó
	clock.Advance(reload - time.Second)
	stale, err := NewIssuer(testIssuer, b, ttl).Issue(Principal{Subject: "bob", Roles: []string{"R"}}, clock.Now())
	require.NoError(t, err)
	require.Equal(t, old.KID, stale.KID)

	clock.Advance(time.Second)
	require.NoError(t, b.Reload(ctx))
	fresh, err := NewIssuer(testIssuer, b, ttl).Issue(Principal{Subject: "bob", Roles: []string{"R"}}, clock.Now())
	require.NoError(t, err)
	require.Equal(t, newKID, fresh.KID)
	_, ok := b.PublicKeySet().Lookup(newKID)
	require.True(t, ok)

	// último instante aceptado del token viejo: exp + skew
	clock.Advance(stale.Claims.ExpiresAt.Add(skew).Sub(clock.Now()))
	_, err = a.Sweep(ctx)
	require.NoError(t, err)
	_, err = NewVerifier(skew).Verify(stale.Raw, a.PublicKeySet(), clock.Now(), testIssuer)
	require.NoError(t, err)
}

func TestKeyStore_RunReloadsBetweenSweeps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()

	open := func(reload time.Duration) *KeyStore {
		store, err := NewFileSigningKeyStore(dir, testMasterKey)
		require.NoError(t, err)
		return NewKeyStore(store, KeyStoreConfig{Grace: time.Hour, ReloadInterval: reload})
	}
	a, b := open(0), open(5*time.Millisecond)
	require.NoError(t, a.EnsureBootstrap(ctx))
	require.NoError(t, b.EnsureBootstrap(ctx))

	go b.Run(ctx, time.Hour)

	newKID, err := a.Rotate(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		cur, err := b.CurrentSigningKey()
		return err == nil && cur.KID == newKID
	}, 2*time.Second, 5*time.Millisecond)
}
