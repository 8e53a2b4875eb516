package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftshare.io/driftshare/pkg/events"
	"driftshare.io/driftshare/pkg/storage"
	"driftshare.io/driftshare/pkg/types"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newID() (string, error) { return uuid.NewString(), nil }

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIndexColdRunMarksEverythingAdded(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")
	writeFile(t, dir, "nested/b.txt", "world")

	store := newTestStore(t)
	folder := &types.Folder{ID: "f1", Path: dir}
	require.NoError(t, store.CreateFolder(folder))

	ix := New(store, DefaultConfig(), events.NewBroker(), newID)
	result, err := ix.Index(context.Background(), folder)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, 0, result.Modified)

	files, err := store.ListFilesByFolder(folder.ID)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestIndexSecondPassDetectsUnchangedModifiedAndDeleted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")
	writeFile(t, dir, "b.txt", "world")

	store := newTestStore(t)
	folder := &types.Folder{ID: "f1", Path: dir}
	require.NoError(t, store.CreateFolder(folder))

	ix := New(store, DefaultConfig(), events.NewBroker(), newID)
	_, err := ix.Index(context.Background(), folder)
	require.NoError(t, err)

	writeFile(t, dir, "b.txt", "world-changed") // modified
	require.NoError(t, os.Remove(filepath.Join(dir, "a.txt")))
	writeFile(t, dir, "c.txt", "new file") // added

	result, err := ix.Index(context.Background(), folder)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)    // c.txt
	assert.Equal(t, 1, result.Modified) // b.txt
	assert.Equal(t, 1, result.Deleted)  // a.txt
}
