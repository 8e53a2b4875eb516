package retriever

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftshare.io/driftshare/pkg/access"
	"driftshare.io/driftshare/pkg/codec"
	"driftshare.io/driftshare/pkg/core"
	"driftshare.io/driftshare/pkg/crypto"
	netpkg "driftshare.io/driftshare/pkg/net"
	"driftshare.io/driftshare/pkg/segmenter"
	"driftshare.io/driftshare/pkg/sharecodec"
	"driftshare.io/driftshare/pkg/storage"
	"driftshare.io/driftshare/pkg/types"
)

// fakeClient is an in-memory net.Client used to exercise Publisher and
// Retriever without a real article server.
type fakeClient struct {
	mu     sync.Mutex
	posted map[string][]byte
}

func (c *fakeClient) Connect(ctx context.Context, cfg netpkg.ServerConfig) error { return nil }
func (c *fakeClient) Authenticate(ctx context.Context, u, p string) error        { return nil }
func (c *fakeClient) Post(ctx context.Context, subject string, body []byte, group string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := fmt.Sprintf("<%d@test>", len(c.posted)+1)
	c.posted[id] = append([]byte{}, body...)
	return id, nil
}
func (c *fakeClient) Fetch(ctx context.Context, messageID string) (map[string]string, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	body, ok := c.posted[messageID]
	if !ok {
		return nil, nil, fmt.Errorf("no such article %s", messageID)
	}
	return map[string]string{}, body, nil
}
func (c *fakeClient) Capabilities(ctx context.Context) (netpkg.Capabilities, error) {
	return netpkg.Capabilities{PostingAllowed: true}, nil
}
func (c *fakeClient) Ping(ctx context.Context) error { return nil }
func (c *fakeClient) Close() error                   { return nil }

func newID() (string, error) { return uuid.NewString(), nil }

func TestPublishAndDownloadOpenShareRoundTrip(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	client := &fakeClient{posted: map[string][]byte{}}
	net := netpkg.New(netpkg.Config{
		Servers: []netpkg.ServerConfig{{ID: "srv1", Host: "news.example", MaxConnections: 4}},
	}, func() netpkg.Client { return client })

	pubKey, seed, err := crypto.NewSigningKeypair()
	require.NoError(t, err)
	folder := &types.Folder{ID: "folder-1", Path: "/data/folder-1", SigningPublicKey: pubKey, TargetGroup: "alt.binaries.test", Version: 1}
	folder.SetSigningSeed(seed)

	masterKey, err := crypto.NewMasterKey()
	require.NoError(t, err)
	folder.SetContentKey(masterKey)
	require.NoError(t, store.CreateFolder(folder))

	srcDir := t.TempDir()
	content := []byte("the quick brown fox jumps over the lazy dog, repeated for bulk. ")
	for len(content) < 200_000 {
		content = append(content, content...)
	}
	srcPath := filepath.Join(srcDir, "fox.txt")
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))

	file := &types.File{ID: "file-1", FolderID: folder.ID, Path: "fox.txt", Size: int64(len(content)), ContentHash: crypto.HashHex(content), ChangeKind: types.ChangeAdded}
	require.NoError(t, store.CreateFile(file))

	seg := segmenter.New(segmenter.DefaultConfig(), newID)
	plan, err := seg.SegmentFile(file, srcPath, masterKey)
	require.NoError(t, err)

	retryPolicy := netpkg.DefaultRetryPolicy()
	for _, row := range plan.Segments {
		sealed := plan.Bodies[row.ID]
		header := codec.Header{CiphertextHashPrefix: crypto.HashHex(sealed)[:16], RedundancyIndex: row.RedundancyIndex}
		article := codec.AssembleArticle(header, sealed, codec.DefaultLineWidth)
		subject := crypto.ObfuscateSubject(folder.SigningSeed(), row.ID, row.RedundancyIndex, 32)
		messageID, _, err := net.PostArticle(context.Background(), retryPolicy, "", subject, []byte(article), folder.TargetGroup)
		require.NoError(t, err)
		row.MessageID = messageID
		row.Subject = subject
		row.TargetGroup = folder.TargetGroup
		row.State = types.SegmentUploaded
		require.NoError(t, store.CreateSegment(row))
	}
	file.TotalSegments = len(plan.Segments)
	file.UploadedSegments = len(plan.Segments)
	require.NoError(t, store.UpsertFile(file))

	accessCtl := access.New(store, newID)
	publisher := core.NewPublisher(store, net, accessCtl)
	share, err := publisher.Publish(context.Background(), core.PublishParams{FolderID: folder.ID, Tier: types.TierOpen, Kind: types.ShareKindFull})
	require.NoError(t, err)
	require.NotEmpty(t, share.Index.MessageIDs)

	token := sharecodec.Token{
		Version:       1,
		ShareID:       share.ID,
		Tier:          types.TierOpen,
		FolderPrefix:  sharecodec.FolderPrefix(folder.ID),
		FolderVersion: folder.Version,
		Timestamp:     time.Now(),
		Index:         sharecodec.IndexRef{MessageID: share.Index.MessageIDs[0], Group: share.Index.Group},
	}
	encoded, err := sharecodec.EncodeJSON(token)
	require.NoError(t, err)

	destDir := t.TempDir()
	retr := New(store, net, accessCtl)
	result, err := retr.Download(context.Background(), encoded, Credentials{}, destDir)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesWritten)
	assert.Equal(t, 0, result.FilesSkipped)

	got, err := os.ReadFile(filepath.Join(destDir, "fox.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// a second download of the same destination should skip the file since
	// its content already matches.
	result2, err := retr.Download(context.Background(), encoded, Credentials{}, destDir)
	require.NoError(t, err)
	assert.Equal(t, 0, result2.FilesWritten)
	assert.Equal(t, 1, result2.FilesSkipped)
}
