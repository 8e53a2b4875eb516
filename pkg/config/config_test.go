package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPassesValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage.Path = "./data/driftshare.db"
	cfg.Servers = []ServerConfig{{Host: "news.example.com", Port: 563}}
	assert.Empty(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, warnings, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, warnings, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysPartialFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "driftshare.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  path: /var/lib/driftshare/store.db
segment:
  segment_size: 1048576
`), 0o600))

	cfg, warnings, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "/var/lib/driftshare/store.db", cfg.Storage.Path)
	assert.Equal(t, int64(1048576), cfg.Segment.SegmentSize)
	// fields the file didn't mention keep their defaults
	assert.Equal(t, Default().Upload.Workers, cfg.Upload.Workers)
	assert.Equal(t, Default().Security.ScryptN, cfg.Security.ScryptN)
}

func TestLoadWarnsOnUnknownTopLevelKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "driftshare.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  path: /data/store.db
bogus_section:
  whatever: true
`), 0o600))

	cfg, warnings, err := Load(path)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "bogus_section")
	assert.Equal(t, "/data/store.db", cfg.Storage.Path)
}

func TestValidateCollectsMultipleErrors(t *testing.T) {
	cfg := Config{
		Storage:  StorageConfig{Kind: "mysql"},
		Segment:  SegmentConfig{SegmentSize: 10, RedundancyLevel: 0},
		Indexing: IndexingConfig{Workers: 0},
		Upload:   UploadConfig{Workers: 0, Strategy: "bogus"},
		Security: SecurityConfig{ScryptN: 100, PBKDF2Iterations: 1},
		Publish:  PublishConfig{DefaultExpiryDays: -1},
		Servers:  []ServerConfig{{Host: "", Port: 0}},
	}
	errs := cfg.Validate()
	assert.True(t, len(errs) >= 9)
}

func TestValidateAcceptsRaftStorage(t *testing.T) {
	cfg := Default()
	cfg.Storage.Kind = "raft"
	cfg.Storage.Path = "/data"
	assert.Empty(t, cfg.Validate())
}
