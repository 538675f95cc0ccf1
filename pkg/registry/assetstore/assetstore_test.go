package assetstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brane-project/brane/pkg/registry/assetstore"
)

func writeContent(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte("hello"), 0o644))
}

func TestFilesystemStore_PutThenGet(t *testing.T) {
	root := t.TempDir()
	store := assetstore.NewFilesystemStore(root)

	content := filepath.Join(t.TempDir(), "staged")
	writeContent(t, content)

	err := store.Put(context.Background(), assetstore.AssetInfo{Name: "final", Owner: "alice"}, content)
	require.NoError(t, err)

	info, err := store.Get(context.Background(), "final")
	require.NoError(t, err)
	assert.Equal(t, "final", info.Name)
	assert.Equal(t, "alice", info.Owner)
	assert.False(t, info.CreatedAt.IsZero())
	assert.Greater(t, info.Size, int64(0))

	data, err := os.ReadFile(filepath.Join(store.Path("final"), "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestFilesystemStore_GetUnknownReturnsNotFound(t *testing.T) {
	store := assetstore.NewFilesystemStore(t.TempDir())
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, assetstore.ErrNotFound)
}

func TestFilesystemStore_ListSkipsStrayDirectories(t *testing.T) {
	root := t.TempDir()
	store := assetstore.NewFilesystemStore(root)

	content := filepath.Join(t.TempDir(), "staged")
	writeContent(t, content)
	require.NoError(t, store.Put(context.Background(), assetstore.AssetInfo{Name: "a"}, content))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "stray"), 0o755))

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].Name)
}

func TestFilesystemStore_PutOverwritesExisting(t *testing.T) {
	root := t.TempDir()
	store := assetstore.NewFilesystemStore(root)

	first := filepath.Join(t.TempDir(), "first")
	writeContent(t, first)
	require.NoError(t, store.Put(context.Background(), assetstore.AssetInfo{Name: "final"}, first))

	second := filepath.Join(t.TempDir(), "second")
	require.NoError(t, os.MkdirAll(second, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(second, "other.txt"), []byte("v2"), 0o644))
	require.NoError(t, store.Put(context.Background(), assetstore.AssetInfo{Name: "final"}, second))

	_, err := os.Stat(filepath.Join(store.Path("final"), "file.txt"))
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(filepath.Join(store.Path("final"), "other.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}
