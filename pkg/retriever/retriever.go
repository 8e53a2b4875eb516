// Package retriever implements the download side of the pipeline: a token
// resolves to a share, a share's master key is unwrapped by AccessControl,
// the share's index manifest is fetched and decrypted, and every live file
// it names is reconstructed to disk via the segmenter's reverse path.
package retriever

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"driftshare.io/driftshare/pkg/access"
	"driftshare.io/driftshare/pkg/codec"
	"driftshare.io/driftshare/pkg/core"
	"driftshare.io/driftshare/pkg/crypto"
	"driftshare.io/driftshare/pkg/errs"
	netpkg "driftshare.io/driftshare/pkg/net"
	"driftshare.io/driftshare/pkg/segmenter"
	"driftshare.io/driftshare/pkg/sharecodec"
	"driftshare.io/driftshare/pkg/storage"
	"driftshare.io/driftshare/pkg/types"
)

// Credentials carries whichever secret the share's tier requires; only the
// field matching share.Tier is read.
type Credentials struct {
	UserID        string
	UserPublicKey []byte
	Passphrase    string
}

// Retriever drives download_share.
type Retriever struct {
	store  storage.Store
	net    *netpkg.Pool
	access *access.Control
	retry  netpkg.RetryPolicy
}

func New(store storage.Store, net *netpkg.Pool, accessCtl *access.Control) *Retriever {
	return &Retriever{store: store, net: net, access: accessCtl, retry: netpkg.DefaultRetryPolicy()}
}

// Result summarizes a completed download.
type Result struct {
	FilesWritten int
	FilesSkipped int // already present on disk with a matching content hash
	BytesWritten int64
}

// Download parses encodedToken, verifies access, fetches and decrypts the
// share's manifest, and reconstructs every live file into destDir. Files
// already present at their destination path with a matching content hash
// are skipped, so a repeated Download call resumes rather than re-fetching
// everything.
func (r *Retriever) Download(ctx context.Context, encodedToken string, creds Credentials, destDir string) (Result, error) {
	tok, _, err := sharecodec.Parse(encodedToken)
	if err != nil {
		return Result{}, err
	}

	share, err := r.store.GetShare(tok.ShareID)
	if err != nil {
		return Result{}, errs.Transient("retriever.Download", err)
	}

	masterKey, err := r.unwrap(share, creds)
	if err != nil {
		return Result{}, err
	}

	bodies := make([]string, len(share.Index.MessageIDs))
	for i, messageID := range share.Index.MessageIDs {
		_, body, _, err := r.net.FetchArticle(ctx, r.retry, "", messageID)
		if err != nil {
			return Result{}, errs.Transient("retriever.Download", fmt.Errorf("fetching index article %d: %w", i, err))
		}
		bodies[i] = string(body)
	}

	manifest, err := core.DecodeManifest(bodies, masterKey, []byte(share.ID))
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, mf := range manifest.Files {
		written, skipped, n, err := r.reconstructOne(mf, masterKey, manifest.Compressed, destDir)
		if err != nil {
			return result, err
		}
		if written {
			result.FilesWritten++
		}
		if skipped {
			result.FilesSkipped++
		}
		result.BytesWritten += n
	}
	return result, nil
}

func (r *Retriever) unwrap(share *types.Share, creds Credentials) ([]byte, error) {
	switch share.Tier {
	case types.TierOpen:
		return r.access.VerifyOpen(share)
	case types.TierMember:
		return r.access.VerifyMember(share, creds.UserID, creds.UserPublicKey)
	case types.TierPassphrase:
		return r.access.VerifyPassphrase(share, creds.Passphrase)
	default:
		return nil, errs.Validation("retriever.unwrap", fmt.Errorf("unknown access tier %q", share.Tier))
	}
}

// reconstructOne reconstructs one manifest file, skipping it if destPath
// already holds content matching file.ContentHash.
func (r *Retriever) reconstructOne(mf core.ManifestFile, masterKey []byte, compressed bool, destDir string) (written, skipped bool, n int64, err error) {
	file := mf.File
	destPath := filepath.Join(destDir, filepath.FromSlash(file.Path))

	if existing, statErr := os.Open(destPath); statErr == nil {
		sum, hashErr := hashExistingFile(existing)
		existing.Close()
		if hashErr == nil && sum == file.ContentHash {
			return false, true, file.Size, nil
		}
	}

	fetch := func(seg *types.Segment) ([]byte, error) {
		_, body, _, err := r.net.FetchArticle(context.Background(), r.retry, "", seg.MessageID)
		if err != nil {
			return nil, err
		}
		_, ciphertext, err := codec.ParseArticle(string(body))
		return ciphertext, err
	}

	if err := segmenter.ReconstructToFile(file, mf.Segments, masterKey, compressed, fetch, destPath); err != nil {
		return false, false, 0, err
	}
	return true, false, file.Size, nil
}

func hashExistingFile(f *os.File) (string, error) {
	hasher := crypto.NewStreamHasher()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hasher.SumHex(), nil
}
