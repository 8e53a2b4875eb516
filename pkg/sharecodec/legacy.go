package sharecodec

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// EncodeLegacy renders the backward-compatible triplet encoding:
// base64url("share_id:message_id:group").
func EncodeLegacy(shareID, messageID, group string) string {
	plain := fmt.Sprintf("%s:%s:%s", shareID, messageID, group)
	return base64.RawURLEncoding.EncodeToString([]byte(plain))
}

// DecodeLegacy parses the triplet encoding into its three fields.
func DecodeLegacy(encoded string) (shareID, messageID, group string, err error) {
	raw, decErr := base64.RawURLEncoding.DecodeString(encoded)
	if decErr != nil {
		return "", "", "", errInvalidToken("sharecodec.DecodeLegacy", decErr)
	}
	parts := strings.SplitN(string(raw), ":", 3)
	if len(parts) != 3 {
		return "", "", "", errInvalidToken("sharecodec.DecodeLegacy", fmt.Errorf("expected 3 colon-separated fields"))
	}
	return parts[0], parts[1], parts[2], nil
}
