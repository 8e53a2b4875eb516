package core

import (
	"encoding/json"
	"fmt"

	"driftshare.io/driftshare/pkg/codec"
	"driftshare.io/driftshare/pkg/crypto"
	"driftshare.io/driftshare/pkg/errs"
	"driftshare.io/driftshare/pkg/types"
)

// manifestArticleSize bounds how much plaintext manifest JSON one index
// article carries before it is split into another. It has nothing to do
// with Segmenter.Config.SegmentSize; the manifest is small compared to
// file content, so a generous fixed size keeps one-article shares common.
const manifestArticleSize = 256 * 1024

// Manifest is the file-and-segment table published with a share: everything
// a Retriever needs to walk a folder version's files in order and fetch
// every segment without consulting the publisher's store again.
type Manifest struct {
	FolderID      string         `json:"folder_id"`
	FolderVersion int            `json:"folder_version"`
	Compressed    bool           `json:"compressed"` // whether segment bodies were zlib-compressed before sealing
	Files         []ManifestFile `json:"files"`
}

// ManifestFile pairs a file record with its ordered segment rows.
type ManifestFile struct {
	File     *types.File      `json:"file"`
	Segments []*types.Segment `json:"segments"`
}

// buildManifest loads every live file (and its segments) for a folder
// version from the store.
func buildManifest(store manifestStore, folderID string, folderVersion int, compressed bool) (*Manifest, error) {
	files, err := store.ListFilesByFolder(folderID)
	if err != nil {
		return nil, errs.Transient("core.buildManifest", err)
	}

	m := &Manifest{FolderID: folderID, FolderVersion: folderVersion, Compressed: compressed}
	for _, f := range files {
		if f.ChangeKind == types.ChangeDeleted {
			continue
		}
		segs, err := store.ListSegmentsByFile(f.ID)
		if err != nil {
			return nil, errs.Transient("core.buildManifest", err)
		}
		m.Files = append(m.Files, ManifestFile{File: f, Segments: segs})
	}
	return m, nil
}

// manifestStore is the narrow slice of storage.Store buildManifest needs;
// declared locally so tests can stub it without a full store.
type manifestStore interface {
	ListFilesByFolder(folderID string) ([]*types.File, error)
	ListSegmentsByFile(fileID string) ([]*types.Segment, error)
}

// encodeManifestArticles marshals, compresses, and encrypts a manifest,
// returning the plaintext articles ready to post (caller assigns subjects
// and posts them in order; the resulting message ids go in the share's
// IndexRef).
func encodeManifestArticles(m *Manifest, key []byte, aad []byte) ([]string, error) {
	plain, err := json.Marshal(m)
	if err != nil {
		return nil, errs.Fatal("core.encodeManifestArticles", err)
	}
	compressed, err := codec.Compress(plain)
	if err != nil {
		return nil, errs.Fatal("core.encodeManifestArticles", err)
	}

	var chunks [][]byte
	for off := 0; off < len(compressed); off += manifestArticleSize {
		end := off + manifestArticleSize
		if end > len(compressed) {
			end = len(compressed)
		}
		chunks = append(chunks, compressed[off:end])
	}
	if len(chunks) == 0 {
		chunks = [][]byte{{}}
	}

	articles := make([]string, len(chunks))
	for i, chunk := range chunks {
		sealed, err := crypto.Seal(key, chunk, aad)
		if err != nil {
			return nil, errs.Fatal("core.encodeManifestArticles", err)
		}
		header := codec.Header{CiphertextHashPrefix: crypto.HashHex(sealed)[:16], RedundancyIndex: i}
		articles[i] = codec.AssembleArticle(header, sealed, codec.DefaultLineWidth)
	}
	return articles, nil
}

// DecodeManifest reverses encodeManifestArticles: bodies must be
// supplied in the original chunk order.
func DecodeManifest(bodies []string, key []byte, aad []byte) (*Manifest, error) {
	var compressed []byte
	for i, body := range bodies {
		_, ciphertext, err := codec.ParseArticle(body)
		if err != nil {
			return nil, errs.Integrity("core.DecodeManifest", fmt.Errorf("article %d: %w", i, err))
		}
		plain, err := crypto.Open(key, ciphertext, aad)
		if err != nil {
			return nil, errs.Auth("core.DecodeManifest", fmt.Errorf("article %d: %w", i, err))
		}
		compressed = append(compressed, plain...)
	}

	raw, err := codec.Decompress(compressed)
	if err != nil {
		return nil, errs.Integrity("core.DecodeManifest", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errs.Integrity("core.DecodeManifest", err)
	}
	return &m, nil
}
