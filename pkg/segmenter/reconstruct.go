package segmenter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"driftshare.io/driftshare/pkg/codec"
	"driftshare.io/driftshare/pkg/crypto"
	"driftshare.io/driftshare/pkg/errs"
	"driftshare.io/driftshare/pkg/types"
)

// FetchFunc retrieves one redundant copy's ciphertext body for a segment,
// trying whichever article the caller has selected for that index.
type FetchFunc func(seg *types.Segment) ([]byte, error)

// Reconstruct rebuilds a file's plaintext from its segment rows: for each
// segment index, fetch at least one surviving redundant copy, decrypt,
// decompress, and concatenate in index order. It verifies the final
// plaintext hash against file.ContentHash before returning.
func Reconstruct(file *types.File, segments []*types.Segment, key []byte, compressed bool, fetch FetchFunc, dest io.Writer) error {
	byIndex := make(map[int][]*types.Segment)
	for _, s := range segments {
		byIndex[s.SegmentIndex] = append(byIndex[s.SegmentIndex], s)
	}

	indices := make([]int, 0, len(byIndex))
	for idx := range byIndex {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	hasher := crypto.NewStreamHasher()
	for _, idx := range indices {
		copies := byIndex[idx]
		sort.Slice(copies, func(i, j int) bool { return copies[i].RedundancyIndex < copies[j].RedundancyIndex })

		plaintext, err := fetchAndDecrypt(copies, key, compressed, fetch)
		if err != nil {
			return errs.Integrity("segmenter.Reconstruct", fmt.Errorf("segment index %d: %w", idx, err))
		}

		if _, err := dest.Write(plaintext); err != nil {
			return errs.Fatal("segmenter.Reconstruct", fmt.Errorf("write destination: %w", err))
		}
		hasher.Write(plaintext)
	}

	if hasher.SumHex() != file.ContentHash {
		return errs.Integrity("segmenter.Reconstruct", fmt.Errorf("content hash mismatch for %s: want %s got %s", file.Path, file.ContentHash, hasher.SumHex()))
	}
	return nil
}

// fetchAndDecrypt tries each redundant copy in order until one fetches and
// decrypts successfully. All copies failing is an integrity error: no
// surviving copy for that logical segment.
func fetchAndDecrypt(copies []*types.Segment, key []byte, compressed bool, fetch FetchFunc) ([]byte, error) {
	var lastErr error
	for _, seg := range copies {
		body, err := fetch(seg)
		if err != nil {
			lastErr = err
			continue
		}
		plaintext, err := crypto.Open(key, body, aadFor(seg))
		if err != nil {
			lastErr = err
			continue
		}
		if compressed {
			plaintext, err = codec.Decompress(plaintext)
			if err != nil {
				lastErr = err
				continue
			}
		}
		return plaintext, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no redundant copies available")
	}
	return nil, lastErr
}

func aadFor(seg *types.Segment) []byte {
	if seg.PackedSegmentID != "" {
		return []byte(seg.PackedSegmentID)
	}
	return []byte(seg.FileID)
}

// ReconstructToFile is a convenience wrapper that creates dest (and any
// parent directories) and calls Reconstruct.
func ReconstructToFile(file *types.File, segments []*types.Segment, key []byte, compressed bool, fetch FetchFunc, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return errs.Fatal("segmenter.ReconstructToFile", err)
	}
	out, err := os.Create(destPath)
	if err != nil {
		return errs.Fatal("segmenter.ReconstructToFile", err)
	}
	defer out.Close()
	return Reconstruct(file, segments, key, compressed, fetch, out)
}
