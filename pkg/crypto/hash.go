package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
	"time"
)

// HashHex returns the hex-encoded SHA-256 of data, used for file plaintext
// content hashes and ciphertext integrity hashes alike.
func HashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// StreamHasher wraps sha256 for streaming use by the indexer and segmenter,
// which read files in chunks rather than loading them whole.
type StreamHasher struct {
	h hash.Hash
}

// NewStreamHasher returns a ready-to-write streaming SHA-256 accumulator.
func NewStreamHasher() *StreamHasher {
	return &StreamHasher{h: sha256.New()}
}

func (s *StreamHasher) Write(p []byte) (int, error) { return s.h.Write(p) }

func (s *StreamHasher) SumHex() string {
	return hex.EncodeToString(s.h.Sum(nil))
}

// opaqueBase32 is unpadded standard (uppercase) base32; callers lowercase
// its output, which keeps it compact and filesystem/URL safe for use as
// opaque identifiers.
var opaqueBase32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewOpaqueID returns 128 random bits rendered as lowercase hex, for
// internal identifiers where a UUID isn't otherwise in use.
func NewOpaqueID() (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("crypto: generate id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewShareID generates a 24-character base32 share identifier: SHA-256
// over "<32 random hex chars>:<RFC3339Nano timestamp>", base32 of the
// first 15 bytes, truncated to 24 chars. Grounded directly on
// original_source/share_id_generator.py's derivation.
func NewShareID() (string, error) {
	randBytes := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, randBytes); err != nil {
		return "", fmt.Errorf("crypto: generate share id entropy: %w", err)
	}
	material := fmt.Sprintf("%s:%s", hex.EncodeToString(randBytes), time.Now().UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(material))
	encoded := strings.ToLower(opaqueBase32.EncodeToString(sum[:15]))
	if len(encoded) > 24 {
		encoded = encoded[:24]
	}
	return encoded, nil
}

// ObfuscateSubject computes the opaque article subject for one segment:
// base32(HMAC-SHA256(folderSigningKey, segmentID || redundancyIndex))[:n].
// No human-readable material appears in the result.
func ObfuscateSubject(folderSigningKey []byte, segmentID string, redundancyIndex, n int) string {
	mac := hmac.New(sha256.New, folderSigningKey)
	mac.Write([]byte(segmentID))
	mac.Write([]byte{byte(redundancyIndex)})
	sum := mac.Sum(nil)
	encoded := strings.ToLower(opaqueBase32.EncodeToString(sum))
	if n > 0 && n < len(encoded) {
		encoded = encoded[:n]
	}
	return encoded
}

// CommitmentHash computes H(shareID || userID || userPublicKey) for a
// member commitment.
func CommitmentHash(shareID, userID string, userPublicKey []byte) string {
	h := sha256.New()
	h.Write([]byte(shareID))
	h.Write([]byte(userID))
	h.Write(userPublicKey)
	return hex.EncodeToString(h.Sum(nil))
}
