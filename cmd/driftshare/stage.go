package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

func newUUID() (string, error) { return uuid.NewString(), nil }

func newUUIDMust() string { return uuid.NewString() }

// stageBody and loadStagedBody hold a segment's sealed ciphertext between
// "segment" and "upload" CLI invocations, since each is a separate process
// and the plan's in-memory bodies don't survive past segment_folder
// returning. They live under the store's data directory, one file per
// segment id, and are not referenced once a segment's state is uploaded.
func stagingDir(dataDir string) string {
	return filepath.Join(dataDir, "staged-segments")
}

func stageBody(dataDir, segmentID string, body []byte) error {
	dir := stagingDir(dataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("staging segment %s: %w", segmentID, err)
	}
	return os.WriteFile(filepath.Join(dir, segmentID), body, 0o600)
}

func loadStagedBody(dataDir, segmentID string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(stagingDir(dataDir), segmentID))
	if err != nil {
		return nil, fmt.Errorf("loading staged segment %s: %w", segmentID, err)
	}
	return data, nil
}
