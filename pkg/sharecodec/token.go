// Package sharecodec assembles and parses the access token handed out to
// share recipients, in three wire encodings:
// JSON-framed, compact binary, and a legacy triplet for early deployments.
package sharecodec

import (
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"driftshare.io/driftshare/pkg/crypto"
	"driftshare.io/driftshare/pkg/errs"
	"driftshare.io/driftshare/pkg/types"
)

const tokenVersion = 1

// SegmentRef points at one index article, optionally a member of a
// multi-article index.
type SegmentRef struct {
	Index     int
	MessageID string
	Group     string
}

// IndexRef is the token's pointer to the share's index articles: either a
// single message, or a multi-article set in order.
type IndexRef struct {
	Multi     bool
	MessageID string       // single
	Group     string       // single
	Segments  []SegmentRef // multi
}

// Token is the logical payload every encoding carries.
type Token struct {
	Version       int
	ShareID       string
	Tier          types.AccessTier
	FolderPrefix  string // first 8 bytes of folder id hash, hex
	FolderVersion int
	Timestamp     time.Time
	Index         IndexRef
}

var tierByte = map[types.AccessTier]byte{
	types.TierOpen:       0,
	types.TierMember:     1,
	types.TierPassphrase: 2,
}

var byteTier = map[byte]types.AccessTier{
	0: types.TierOpen,
	1: types.TierMember,
	2: types.TierPassphrase,
}

// FolderPrefix derives the 8-byte (16 hex char) folder prefix a token
// carries instead of the full folder id.
func FolderPrefix(folderID string) string {
	return crypto.HashHex([]byte(folderID))[:16]
}

var shareIDBase32 = base32.StdEncoding.WithPadding(base32.NoPadding)

func decodeShareIDCore(shareID string) ([]byte, error) {
	b, err := shareIDBase32.DecodeString(strings.ToUpper(shareID))
	if err != nil {
		return nil, fmt.Errorf("sharecodec: decode share id: %w", err)
	}
	return b, nil
}

func encodeShareIDCore(core []byte) string {
	return strings.ToLower(shareIDBase32.EncodeToString(core))
}

func errInvalidToken(op string, err error) error {
	return errs.Validation(op, fmt.Errorf("invalid token: %w", err))
}
