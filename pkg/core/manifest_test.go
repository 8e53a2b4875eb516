package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftshare.io/driftshare/pkg/crypto"
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

func TestBuildManifestSkipsDeletedFiles(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateFile(&types.File{ID: "f1", FolderID: "folder-1", Path: "a.txt", ChangeKind: types.ChangeAdded}))
	require.NoError(t, store.CreateFile(&types.File{ID: "f2", FolderID: "folder-1", Path: "b.txt", ChangeKind: types.ChangeDeleted}))

	m, err := buildManifest(store, "folder-1", 1, true)
	require.NoError(t, err)
	require.Len(t, m.Files, 1)
	assert.Equal(t, "f1", m.Files[0].File.ID)
}

func TestEncodeDecodeManifestArticlesRoundTrip(t *testing.T) {
	key, err := crypto.NewMasterKey()
	require.NoError(t, err)

	m := &Manifest{
		FolderID:      "folder-1",
		FolderVersion: 3,
		Files: []ManifestFile{
			{File: &types.File{ID: "f1", Path: "a.txt", ContentHash: "deadbeef"}, Segments: []*types.Segment{{ID: "s1", SegmentIndex: 0}}},
		},
	}

	articles, err := encodeManifestArticles(m, key, []byte("share-123"))
	require.NoError(t, err)
	require.NotEmpty(t, articles)

	got, err := DecodeManifest(articles, key, []byte("share-123"))
	require.NoError(t, err)
	require.Len(t, got.Files, 1)
	assert.Equal(t, "f1", got.Files[0].File.ID)
	assert.Equal(t, "a.txt", got.Files[0].File.Path)
	assert.Equal(t, 3, got.FolderVersion)
}

func TestDecodeManifestRejectsWrongKey(t *testing.T) {
	key, err := crypto.NewMasterKey()
	require.NoError(t, err)
	wrongKey, err := crypto.NewMasterKey()
	require.NoError(t, err)

	m := &Manifest{FolderID: "folder-1", Files: []ManifestFile{{File: &types.File{ID: "f1"}}}}
	articles, err := encodeManifestArticles(m, key, []byte("share-123"))
	require.NoError(t, err)

	_, err = DecodeManifest(articles, wrongKey, []byte("share-123"))
	assert.Error(t, err)
}
