package sharecodec

import (
	"encoding/base64"
)

// Encoding names which wire format a token uses.
type Encoding string

const (
	EncodingJSON   Encoding = "json"
	EncodingBinary Encoding = "binary"
	EncodingLegacy Encoding = "legacy"
)

// Parse auto-detects a token's encoding from the first bytes of its
// base64url-decoded payload and the decoded length, then parses it.
// JSON and binary tokens are checksum-verified, and a mismatch surfaces as
// a structured "invalid token" error; the legacy triplet carries no
// checksum, so a legacy Token is returned as decoded.
func Parse(encoded string) (Token, Encoding, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Token{}, "", errInvalidToken("sharecodec.Parse", err)
	}

	switch detect(raw) {
	case EncodingJSON:
		t, err := DecodeJSON(encoded)
		return t, EncodingJSON, err
	case EncodingBinary:
		t, err := DecodeBinary(encoded)
		return t, EncodingBinary, err
	default:
		shareID, messageID, group, err := DecodeLegacy(encoded)
		if err != nil {
			return Token{}, "", err
		}
		return Token{
			ShareID: shareID,
			Index:   IndexRef{MessageID: messageID, Group: group},
		}, EncodingLegacy, nil
	}
}

// detect inspects the decoded payload's shape: JSON starts with '{',
// compact binary starts with the current version byte and has one of the
// two fixed lengths (52 for a single-index ref, 53 for a multi-index ref
// which carries one extra segment-count byte), everything else is assumed
// to be the legacy triplet.
func detect(raw []byte) Encoding {
	if len(raw) > 0 && raw[0] == '{' {
		return EncodingJSON
	}
	if (len(raw) == 52 || len(raw) == 53) && raw[0] == byte(tokenVersion) {
		return EncodingBinary
	}
	return EncodingLegacy
}
