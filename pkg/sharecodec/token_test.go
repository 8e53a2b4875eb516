package sharecodec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftshare.io/driftshare/pkg/crypto"
	"driftshare.io/driftshare/pkg/types"
)

func sampleToken(t *testing.T) Token {
	t.Helper()
	shareID, err := crypto.NewShareID()
	require.NoError(t, err)
	return Token{
		Version:       tokenVersion,
		ShareID:       shareID,
		Tier:          types.TierMember,
		FolderPrefix:  FolderPrefix("folder-123"),
		FolderVersion: 7,
		Timestamp:     time.Unix(1_700_000_000, 0).UTC(),
		Index:         IndexRef{MessageID: "<abc@server>", Group: "alt.binaries.test"},
	}
}

func TestEncodeDecodeJSONRoundTrip(t *testing.T) {
	tok := sampleToken(t)
	encoded, err := EncodeJSON(tok)
	require.NoError(t, err)

	got, err := DecodeJSON(encoded)
	require.NoError(t, err)
	assert.Equal(t, tok.ShareID, got.ShareID)
	assert.Equal(t, tok.Tier, got.Tier)
	assert.Equal(t, tok.FolderPrefix, got.FolderPrefix)
	assert.Equal(t, tok.FolderVersion, got.FolderVersion)
	assert.Equal(t, tok.Index.MessageID, got.Index.MessageID)
}

func TestDecodeJSONRejectsTamperedChecksum(t *testing.T) {
	tok := sampleToken(t)
	encoded, err := EncodeJSON(tok)
	require.NoError(t, err)

	tampered := encoded[:len(encoded)-4] + "aaaa"
	_, err = DecodeJSON(tampered)
	assert.Error(t, err)
}

func TestEncodeDecodeJSONMultiIndexRoundTrip(t *testing.T) {
	tok := sampleToken(t)
	tok.Index = IndexRef{Multi: true, Segments: []SegmentRef{
		{Index: 0, MessageID: "<a@server>", Group: "g"},
		{Index: 1, MessageID: "<b@server>", Group: "g"},
	}}
	encoded, err := EncodeJSON(tok)
	require.NoError(t, err)

	got, err := DecodeJSON(encoded)
	require.NoError(t, err)
	require.True(t, got.Index.Multi)
	assert.Len(t, got.Index.Segments, 2)
	assert.Equal(t, "<b@server>", got.Index.Segments[1].MessageID)
}

func TestEncodeDecodeBinaryRoundTrip(t *testing.T) {
	tok := sampleToken(t)
	encoded, err := EncodeBinary(tok)
	require.NoError(t, err)

	got, err := DecodeBinary(encoded)
	require.NoError(t, err)
	assert.Equal(t, tok.ShareID, got.ShareID)
	assert.Equal(t, tok.Tier, got.Tier)
	assert.Equal(t, tok.FolderPrefix, got.FolderPrefix)
	assert.Equal(t, tok.FolderVersion, got.FolderVersion)
}

func TestEncodeDecodeBinaryMultiIndexRoundTrip(t *testing.T) {
	tok := sampleToken(t)
	tok.Index = IndexRef{Multi: true, Segments: []SegmentRef{
		{Index: 0, MessageID: "<a@server>", Group: "g"},
		{Index: 1, MessageID: "<b@server>", Group: "g"},
	}}
	encoded, err := EncodeBinary(tok)
	require.NoError(t, err)

	got, err := DecodeBinary(encoded)
	require.NoError(t, err)
	assert.Equal(t, tok.ShareID, got.ShareID)
	assert.True(t, got.Index.Multi)

	_, enc, err := Parse(encoded)
	require.NoError(t, err)
	assert.Equal(t, EncodingBinary, enc)
}

func TestDecodeBinaryRejectsTamperedChecksum(t *testing.T) {
	tok := sampleToken(t)
	encoded, err := EncodeBinary(tok)
	require.NoError(t, err)

	tampered := encoded[:len(encoded)-2] + "zz"
	_, err = DecodeBinary(tampered)
	assert.Error(t, err)
}

func TestEncodeDecodeLegacyRoundTrip(t *testing.T) {
	encoded := EncodeLegacy("share123", "<msg@server>", "alt.binaries.test")
	shareID, messageID, group, err := DecodeLegacy(encoded)
	require.NoError(t, err)
	assert.Equal(t, "share123", shareID)
	assert.Equal(t, "<msg@server>", messageID)
	assert.Equal(t, "alt.binaries.test", group)
}

func TestParseAutoDetectsAllThreeEncodings(t *testing.T) {
	tok := sampleToken(t)

	jsonEncoded, err := EncodeJSON(tok)
	require.NoError(t, err)
	_, enc, err := Parse(jsonEncoded)
	require.NoError(t, err)
	assert.Equal(t, EncodingJSON, enc)

	binEncoded, err := EncodeBinary(tok)
	require.NoError(t, err)
	_, enc, err = Parse(binEncoded)
	require.NoError(t, err)
	assert.Equal(t, EncodingBinary, enc)

	legacyEncoded := EncodeLegacy("share123", "<msg@server>", "g")
	_, enc, err = Parse(legacyEncoded)
	require.NoError(t, err)
	assert.Equal(t, EncodingLegacy, enc)
}
