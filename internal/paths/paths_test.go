package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_CreatesDirs(t *testing.T) {
	root := t.TempDir()
	d, err := Resolve(filepath.Join(root, "out"))
	require.NoError(t, err)

	for _, dir := range []string{d.DataDir, d.CacheDir, d.StateDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestAtomicWriteFile_NoPartialFileOnRead(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "manifest.json")

	require.NoError(t, AtomicWriteFile(target, []byte(`{"ok":true}`), 0o644))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp files")
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "f.txt")

	require.NoError(t, AtomicWriteFile(target, []byte("v1"), 0o644))
	require.NoError(t, AtomicWriteFile(target, []byte("v2"), 0o644))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}
