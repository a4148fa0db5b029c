package atomicwrite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFile_ReplacesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "nested", "k.json")

	require.NoError(t, WriteFile(p, []byte("v1"), 0o600))
	require.NoError(t, WriteFile(p, []byte("v2"), 0o600))

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	require.Equal(t, "v2", string(b))

	entries, err := os.ReadDir(filepath.Dir(p))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
