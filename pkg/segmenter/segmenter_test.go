package segmenter

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftshare.io/driftshare/pkg/crypto"
	"driftshare.io/driftshare/pkg/types"
)

func newID() (string, error) { return uuid.NewString(), nil }

func TestSegmentFileAndReconstructRoundTrip(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte("driftshare segment content "), 10000) // forces multiple segments
	path := filepath.Join(dir, "source.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	key, err := crypto.NewMasterKey()
	require.NoError(t, err)

	cfg := Config{SegmentSize: 64 * 1024, PackThreshold: 50 * 1024, Redundancy: 2, Compress: true}
	s := New(cfg, newID)

	hash := crypto.HashHex(content)
	file := &types.File{ID: "file-1", Size: int64(len(content)), ContentHash: hash}

	plan, err := s.SegmentFile(file, path, key)
	require.NoError(t, err)
	assert.NotEmpty(t, plan.Segments)

	expectedSegmentCount := (file.Size + cfg.SegmentSize - 1) / cfg.SegmentSize
	assert.Equal(t, int(expectedSegmentCount)*cfg.Redundancy, len(plan.Segments))

	fetch := func(seg *types.Segment) ([]byte, error) {
		return plan.Bodies[seg.ID], nil
	}

	var out bytes.Buffer
	err = Reconstruct(file, plan.Segments, key, cfg.Compress, fetch, &out)
	require.NoError(t, err)
	assert.Equal(t, content, out.Bytes())
}

func TestReconstructFallsBackToSurvivingRedundantCopy(t *testing.T) {
	dir := t.TempDir()
	content := []byte("small file content that fits in one segment")
	path := filepath.Join(dir, "f.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	key, err := crypto.NewMasterKey()
	require.NoError(t, err)

	cfg := Config{SegmentSize: 64 * 1024, PackThreshold: 50 * 1024, Redundancy: 2, Compress: false}
	s := New(cfg, newID)

	file := &types.File{ID: "file-2", Size: int64(len(content)), ContentHash: crypto.HashHex(content)}
	plan, err := s.SegmentFile(file, path, key)
	require.NoError(t, err)

	fetch := func(seg *types.Segment) ([]byte, error) {
		if seg.RedundancyIndex == 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return plan.Bodies[seg.ID], nil
	}

	var out bytes.Buffer
	err = Reconstruct(file, plan.Segments, key, cfg.Compress, fetch, &out)
	require.NoError(t, err)
	assert.Equal(t, content, out.Bytes())
}

func TestReconstructFailsWhenAllCopiesMissing(t *testing.T) {
	dir := t.TempDir()
	content := []byte("content")
	path := filepath.Join(dir, "f.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	key, err := crypto.NewMasterKey()
	require.NoError(t, err)

	cfg := Config{SegmentSize: 64 * 1024, PackThreshold: 50 * 1024, Redundancy: 2, Compress: false}
	s := New(cfg, newID)
	file := &types.File{ID: "file-3", Size: int64(len(content)), ContentHash: crypto.HashHex(content)}
	plan, err := s.SegmentFile(file, path, key)
	require.NoError(t, err)

	fetch := func(seg *types.Segment) ([]byte, error) { return nil, io.ErrUnexpectedEOF }

	var out bytes.Buffer
	err = Reconstruct(file, plan.Segments, key, cfg.Compress, fetch, &out)
	assert.Error(t, err)
}

func TestPackFilesPacksSubThresholdFiles(t *testing.T) {
	files := []*types.File{
		{ID: "a", Path: "a.txt", Size: 10},
		{ID: "b", Path: "b.txt", Size: 20},
	}
	contents := map[string][]byte{"a": []byte("0123456789"), "b": []byte("01234567890123456789")}

	key, err := crypto.NewMasterKey()
	require.NoError(t, err)

	cfg := Config{SegmentSize: 1024, PackThreshold: 50, Redundancy: 2, Compress: true}
	s := New(cfg, newID)

	open := func(f *types.File) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(contents[f.ID])), nil
	}

	ps, members, plan, remainder, err := s.PackFiles("folder-1", files, open, key)
	require.NoError(t, err)
	assert.Len(t, members, 2)
	assert.Empty(t, remainder)
	assert.Equal(t, 2, ps.MemberCount)
	assert.Equal(t, 2, len(plan.Segments)) // redundancy 2
}
