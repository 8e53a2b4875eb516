// Package segmenter turns indexed files into the fixed-size, encrypted,
// redundant segments that the uploader posts, and reverses the process on
// retrieval.
package segmenter

import (
	"fmt"
	"io"
	"os"

	"driftshare.io/driftshare/pkg/codec"
	"driftshare.io/driftshare/pkg/crypto"
	"driftshare.io/driftshare/pkg/errs"
	"driftshare.io/driftshare/pkg/types"
)

// Config tunes cutting and packing thresholds.
type Config struct {
	SegmentSize   int64
	PackThreshold int64
	Redundancy    int
	Compress      bool
}

func DefaultConfig() Config {
	return Config{
		SegmentSize:   768_000,
		PackThreshold: 50 * 1024,
		Redundancy:    2,
		Compress:      true,
	}
}

// Plan is the set of segment rows (not yet posted) produced for one file,
// plus the sealed body bytes for each (segment_index, redundancy_index)
// pair, keyed the same way the rows are.
type Plan struct {
	Segments []*types.Segment
	Bodies   map[string][]byte // segment.ID -> ciphertext, ready to post
}

// Segmenter cuts and packs files into segments, encrypting each produced
// body with the caller-supplied key (the share's master key, or the
// folder's content-encryption key, per the caller's policy).
type Segmenter struct {
	cfg   Config
	newID func() (string, error)
}

func New(cfg Config, newID func() (string, error)) *Segmenter {
	return &Segmenter{cfg: cfg, newID: newID}
}

// SegmentFile cuts a single file >= PackThreshold into fixed-size segments,
// one row per (segment_index, redundancy_index).
func (s *Segmenter) SegmentFile(file *types.File, sourcePath string, key []byte) (*Plan, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, errs.Validation("segmenter.SegmentFile", fmt.Errorf("open source: %w", err))
	}
	defer f.Close()

	plan := &Plan{Bodies: make(map[string][]byte)}
	segmentCount := int((file.Size + s.cfg.SegmentSize - 1) / s.cfg.SegmentSize)
	if segmentCount == 0 {
		segmentCount = 1
	}

	for idx := 0; idx < segmentCount; idx++ {
		start := int64(idx) * s.cfg.SegmentSize
		size := s.cfg.SegmentSize
		if remaining := file.Size - start; remaining < size {
			size = remaining
		}

		plaintext := make([]byte, size)
		if _, err := io.ReadFull(io.LimitReader(f, size), plaintext); err != nil {
			return nil, errs.Transient("segmenter.SegmentFile", fmt.Errorf("read segment %d: %w", idx, err))
		}

		body, compressedSize, err := s.prepare(plaintext)
		if err != nil {
			return nil, err
		}

		for r := 0; r < s.cfg.Redundancy; r++ {
			id, _ := s.newID()
			sealed, err := crypto.Seal(key, body, []byte(file.ID))
			if err != nil {
				return nil, errs.Fatal("segmenter.SegmentFile", fmt.Errorf("encrypt segment %d/%d: %w", idx, r, err))
			}

			seg := &types.Segment{
				ID: id, FileID: file.ID, SegmentIndex: idx, RedundancyIndex: r,
				PlaintextSize: size, CompressedSize: compressedSize,
				CiphertextHash: crypto.HashHex(sealed),
				OffsetStart:    start, OffsetEnd: start + size,
				State: types.SegmentPending,
			}
			plan.Segments = append(plan.Segments, seg)
			plan.Bodies[seg.ID] = sealed
		}
	}

	return plan, nil
}

// prepare optionally compresses a plaintext segment body. It returns the
// body to encrypt next and its size after compression (equal to len(body)
// when compression is disabled).
func (s *Segmenter) prepare(plaintext []byte) ([]byte, int64, error) {
	if !s.cfg.Compress {
		return plaintext, int64(len(plaintext)), nil
	}
	compressed, err := codec.Compress(plaintext)
	if err != nil {
		return nil, 0, errs.Fatal("segmenter.prepare", err)
	}
	return compressed, int64(len(compressed)), nil
}

// PackedMember is one file's offset window inside a shared PackedSegment.
type PackedMember struct {
	File        *types.File
	SourcePath  string
	OffsetStart int64
	OffsetEnd   int64
}

// PackFiles packs a run of sub-threshold files into one PackedSegment body,
// stopping when the next file would exceed SegmentSize or is not below
// PackThreshold. It returns the PackedSegment row, the members that fit,
// the plan for the packed body, and the files that did not fit (the caller
// re-invokes PackFiles on that remainder).
func (s *Segmenter) PackFiles(folderID string, files []*types.File, openSource func(*types.File) (io.ReadCloser, error), key []byte) (*types.PackedSegment, []PackedMember, *Plan, []*types.File, error) {
	var members []PackedMember
	var body []byte
	var offset int64

	i := 0
	for ; i < len(files); i++ {
		f := files[i]
		if f.Size >= s.cfg.PackThreshold {
			break
		}
		if offset+f.Size > s.cfg.SegmentSize && len(members) > 0 {
			break
		}

		rc, err := openSource(f)
		if err != nil {
			return nil, nil, nil, nil, errs.Validation("segmenter.PackFiles", fmt.Errorf("open %s: %w", f.Path, err))
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, nil, nil, nil, errs.Transient("segmenter.PackFiles", fmt.Errorf("read %s: %w", f.Path, err))
		}

		members = append(members, PackedMember{File: f, OffsetStart: offset, OffsetEnd: offset + int64(len(content))})
		body = append(body, content...)
		offset += int64(len(content))
	}

	remainder := files[i:]
	if len(members) == 0 {
		return nil, nil, nil, remainder, nil
	}

	compressionType := "none"
	prepared := body
	if s.cfg.Compress {
		compressed, err := codec.Compress(body)
		if err != nil {
			return nil, nil, nil, nil, errs.Fatal("segmenter.PackFiles", err)
		}
		prepared = compressed
		compressionType = "zlib"
	}

	psID, _ := s.newID()
	ps := &types.PackedSegment{
		ID: psID, FolderID: folderID, TotalBytes: int64(len(body)),
		MemberCount: len(members), CompressionType: compressionType,
	}

	plan := &Plan{Bodies: make(map[string][]byte)}
	for r := 0; r < s.cfg.Redundancy; r++ {
		segID, _ := s.newID()
		sealed, err := crypto.Seal(key, prepared, []byte(psID))
		if err != nil {
			return nil, nil, nil, nil, errs.Fatal("segmenter.PackFiles", fmt.Errorf("encrypt packed segment r=%d: %w", r, err))
		}
		seg := &types.Segment{
			ID: segID, PackedSegmentID: psID, RedundancyIndex: r,
			PlaintextSize: int64(len(body)), CompressedSize: int64(len(prepared)),
			CiphertextHash: crypto.HashHex(sealed), State: types.SegmentPending,
		}
		plan.Segments = append(plan.Segments, seg)
		plan.Bodies[seg.ID] = sealed
	}

	return ps, members, plan, remainder, nil
}
