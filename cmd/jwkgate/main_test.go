package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/jwkgate/internal/config"
	"github.com/dropDatabas3/jwkgate/internal/rate"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"serve", "auth"},
		{"serve", "resource"},
		{"keys", "rotate"},
		{"keys", "list"},
		{"keys", "sweep"},
		{"keys", "gen-master-key"},
		{"token", "issue"},
		{"token", "verify"},
		{"users", "hash-password"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestLoginLimiter(t *testing.T) {
	cfg := config.Default()
	assert.Nil(t, loginLimiter(cfg, nil))

	cfg.Rate.Enabled = true
	_, ok := loginLimiter(cfg, nil).(*rate.MemoryLimiter)
	assert.True(t, ok)
}

func TestOpenKeyStore_FSPersistsAcrossOpens(t *testing.T) {
	cfg := config.Default()
	cfg.Keys.Store = "fs"
	cfg.Keys.FSDir = filepath.Join(t.TempDir(), "keys")
	cfg.Keys.MasterKey = "0123456789abcdef0123456789abcdef"

	ctx := context.Background()
	kb, err := openPersistentKeyStore(ctx, cfg)
	require.NoError(t, err)
	first, err := kb.Keys.CurrentSigningKey()
	require.NoError(t, err)
	kb.Close()

	kb, err = openPersistentKeyStore(ctx, cfg)
	require.NoError(t, err)
	defer kb.Close()
	again, err := kb.Keys.CurrentSigningKey()
	require.NoError(t, err)
	assert.Equal(t, first.KID, again.KID)

	detail, err := kb.Check.Check(ctx)
	require.NoError(t, err)
	assert.Contains(t, detail, first.KID)

	entries, err := os.ReadDir(cfg.Keys.FSDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOpenPersistentKeyStore_RejectsMemory(t *testing.T) {
	_, err := openPersistentKeyStore(context.Background(), config.Default())
	assert.ErrorIs(t, err, errMemoryStore)
}
