// Package config loads the on-disk configuration for a driftshare node:
// storage location, article-network servers, and the tuning knobs for
// indexing, segmenting, uploading, downloading, and key derivation. It
// mirrors the source system's single flat settings object rather than the
// teacher's per-service config, since driftshare runs as one process.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"driftshare.io/driftshare/pkg/crypto"
	"driftshare.io/driftshare/pkg/indexer"
	netpkg "driftshare.io/driftshare/pkg/net"
	"driftshare.io/driftshare/pkg/segmenter"
	"driftshare.io/driftshare/pkg/uploader"
)

// Config is the full set of tunables for a driftshare node.
type Config struct {
	System   SystemConfig   `yaml:"system"`
	Storage  StorageConfig  `yaml:"storage"`
	Servers  []ServerConfig `yaml:"servers"`
	Indexing IndexingConfig `yaml:"indexing"`
	Segment  SegmentConfig  `yaml:"segment"`
	Upload   UploadConfig   `yaml:"upload"`
	Download DownloadConfig `yaml:"download"`
	Security SecurityConfig `yaml:"security"`
	Publish  PublishConfig  `yaml:"publish"`
}

// SystemConfig holds node-wide paths and logging.
type SystemConfig struct {
	DataDirectory string `yaml:"data_directory"`
	TempDirectory string `yaml:"temp_directory"`
	LogLevel      string `yaml:"log_level"`
}

// StorageConfig points at the node's persistent store. Kind selects
// between the standalone bbolt store and the Raft-replicated one.
type StorageConfig struct {
	Kind string `yaml:"kind"` // "bolt" or "raft"
	Path string `yaml:"path"`
}

// ServerConfig describes one article-network server.
type ServerConfig struct {
	ID             string        `yaml:"id"`
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	SSL            bool          `yaml:"ssl"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	MaxConnections int           `yaml:"max_connections"`
	Priority       int           `yaml:"priority"`
	Timeout        time.Duration `yaml:"timeout"`
}

// IndexingConfig tunes the filesystem walk.
type IndexingConfig struct {
	Workers   int `yaml:"worker_threads"`
	BatchSize int `yaml:"batch_size"`
}

// SegmentConfig tunes how files are cut into segments.
type SegmentConfig struct {
	SegmentSize     int64 `yaml:"segment_size"`
	PackThreshold   int64 `yaml:"pack_threshold"`
	RedundancyLevel int   `yaml:"redundancy_level"`
	Compress        bool  `yaml:"compress"`
}

// UploadConfig tunes the upload worker pool.
type UploadConfig struct {
	Workers         int      `yaml:"worker_threads"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	Newsgroups      []string `yaml:"newsgroups"`
	Strategy        string   `yaml:"strategy"` // round_robin, weighted, health_first
	MaxRetries      int      `yaml:"max_retries"`
}

// DownloadConfig holds download tuning values. No package reads them: the
// retriever fetches one segment at a time and always verifies file hashes.
type DownloadConfig struct {
	Workers          int  `yaml:"worker_threads"`
	ParallelSegments int  `yaml:"parallel_segments"`
	VerifyIntegrity  bool `yaml:"verify_integrity"`
}

// SecurityConfig holds key-derivation cost parameters. ToScryptParams
// converts them, but share creation in pkg/access does not read them: it
// always uses crypto.DefaultScryptParams and crypto.DefaultPBKDF2Iterations.
type SecurityConfig struct {
	ScryptN          int `yaml:"scrypt_n"`
	ScryptR          int `yaml:"scrypt_r"`
	ScryptP          int `yaml:"scrypt_p"`
	PBKDF2Iterations int `yaml:"pbkdf2_iterations"`
}

// PublishConfig holds publish defaults. publish_folder does not read them:
// share expiry comes from the caller and no share size cap is enforced.
type PublishConfig struct {
	DefaultExpiryDays int   `yaml:"default_expiry_days"`
	MaxShareSizeBytes int64 `yaml:"max_share_size_bytes"`
}

// Default returns a Config with every field set to the value the rest of
// the packages already use when their own DefaultConfig is left
// unconfigured, so an empty or partial file still yields a runnable node.
func Default() Config {
	segDefaults := segmenter.DefaultConfig()
	idxDefaults := indexer.DefaultConfig()
	upDefaults := uploader.DefaultConfig()
	return Config{
		System: SystemConfig{
			DataDirectory: "./data",
			TempDirectory: os.TempDir(),
			LogLevel:      "info",
		},
		Storage: StorageConfig{
			Kind: "bolt",
			Path: "./data/driftshare.db",
		},
		Indexing: IndexingConfig{
			Workers:   idxDefaults.Workers,
			BatchSize: idxDefaults.BatchSize,
		},
		Segment: SegmentConfig{
			SegmentSize:     segDefaults.SegmentSize,
			PackThreshold:   segDefaults.PackThreshold,
			RedundancyLevel: 1,
			Compress:        segDefaults.Compress,
		},
		Upload: UploadConfig{
			Workers:    upDefaults.Workers,
			Strategy:   string(netpkg.StrategyHealthFirst),
			MaxRetries: netpkg.DefaultRetryPolicy().MaxRetries,
		},
		Download: DownloadConfig{
			Workers:          4,
			ParallelSegments: 10,
			VerifyIntegrity:  true,
		},
		Security: SecurityConfig{
			ScryptN:          crypto.DefaultScryptParams.N,
			ScryptR:          crypto.DefaultScryptParams.R,
			ScryptP:          crypto.DefaultScryptParams.P,
			PBKDF2Iterations: crypto.DefaultPBKDF2Iterations,
		},
		Publish: PublishConfig{
			DefaultExpiryDays: 30,
			MaxShareSizeBytes: 100 * 1024 * 1024 * 1024,
		},
	}
}

// Load reads a YAML file over top of Default(), so any field the file
// omits keeps its default. A missing path is not an error: it returns
// Default() unchanged, the way a first run with no config file yet
// should behave.
func Load(path string) (Config, []string, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil, nil
		}
		return Config{}, nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	warnings, err := decodeOverUnknown(data, &cfg)
	if err != nil {
		return Config{}, nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, warnings, nil
}

// decodeOverUnknown merges data into cfg (which already carries defaults)
// and returns a warning for every top-level key in the document that
// isn't a recognized section, instead of failing the load outright.
func decodeOverUnknown(data []byte, cfg *Config) ([]string, error) {
	var probe map[string]yaml.Node
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}

	var warnings []string
	for key := range probe {
		if !knownTopLevelKey(key) {
			warnings = append(warnings, fmt.Sprintf("unknown config key %q ignored", key))
		}
	}
	return warnings, nil
}

func knownTopLevelKey(key string) bool {
	switch key {
	case "system", "storage", "servers", "indexing", "segment", "upload", "download", "security", "publish":
		return true
	default:
		return false
	}
}

// Validate collects every configuration error found rather than stopping
// at the first one, so an operator can fix a config file in one pass.
func (c Config) Validate() []error {
	var errs []error

	if c.Storage.Kind != "bolt" && c.Storage.Kind != "raft" {
		errs = append(errs, fmt.Errorf("storage.kind must be \"bolt\" or \"raft\", got %q", c.Storage.Kind))
	}
	if c.Storage.Path == "" {
		errs = append(errs, fmt.Errorf("storage.path is required"))
	}

	for i, s := range c.Servers {
		if s.Host == "" {
			errs = append(errs, fmt.Errorf("servers[%d]: host is required", i))
		}
		if s.Port <= 0 {
			errs = append(errs, fmt.Errorf("servers[%d]: port must be positive", i))
		}
	}

	if c.Segment.SegmentSize < 1024 {
		errs = append(errs, fmt.Errorf("segment.segment_size must be at least 1024 bytes"))
	}
	if c.Segment.RedundancyLevel < 1 {
		errs = append(errs, fmt.Errorf("segment.redundancy_level must be at least 1"))
	}

	if c.Indexing.Workers < 1 {
		errs = append(errs, fmt.Errorf("indexing.worker_threads must be at least 1"))
	}
	if c.Upload.Workers < 1 {
		errs = append(errs, fmt.Errorf("upload.worker_threads must be at least 1"))
	}
	switch netpkg.Strategy(c.Upload.Strategy) {
	case netpkg.StrategyRoundRobin, netpkg.StrategyWeighted, netpkg.StrategyHealthFirst:
	default:
		errs = append(errs, fmt.Errorf("upload.strategy must be round_robin, weighted, or health_first, got %q", c.Upload.Strategy))
	}

	if c.Security.ScryptN <= 1 || c.Security.ScryptN&(c.Security.ScryptN-1) != 0 {
		errs = append(errs, fmt.Errorf("security.scrypt_n must be a power of two greater than 1"))
	}
	if c.Security.PBKDF2Iterations < 1000 {
		errs = append(errs, fmt.Errorf("security.pbkdf2_iterations must be at least 1000"))
	}

	if c.Publish.DefaultExpiryDays < 0 {
		errs = append(errs, fmt.Errorf("publish.default_expiry_days must not be negative"))
	}

	return errs
}

// ToSegmenterConfig maps this Config's segment section onto segmenter.Config.
func (c Config) ToSegmenterConfig() segmenter.Config {
	return segmenter.Config{
		SegmentSize:   c.Segment.SegmentSize,
		PackThreshold: c.Segment.PackThreshold,
		Redundancy:    c.Segment.RedundancyLevel,
		Compress:      c.Segment.Compress,
	}
}

// ToIndexerConfig maps this Config's indexing section onto indexer.Config.
func (c Config) ToIndexerConfig() indexer.Config {
	return indexer.Config{
		Workers:   c.Indexing.Workers,
		BatchSize: c.Indexing.BatchSize,
	}
}

// ToNetConfig maps this Config's servers and upload strategy onto net.Config.
func (c Config) ToNetConfig() netpkg.Config {
	servers := make([]netpkg.ServerConfig, len(c.Servers))
	for i, s := range c.Servers {
		servers[i] = netpkg.ServerConfig{
			ID: s.ID, Host: s.Host, Port: s.Port, SSL: s.SSL,
			Username: s.Username, Password: s.Password,
			MaxConnections: s.MaxConnections, Priority: s.Priority, Timeout: s.Timeout,
		}
	}
	return netpkg.Config{
		Servers:  servers,
		Strategy: netpkg.Strategy(c.Upload.Strategy),
	}
}

// ToScryptParams maps this Config's security section onto crypto.ScryptParams.
func (c Config) ToScryptParams() crypto.ScryptParams {
	return crypto.ScryptParams{N: c.Security.ScryptN, R: c.Security.ScryptR, P: c.Security.ScryptP}
}
