package sharecodec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"driftshare.io/driftshare/pkg/crypto"
	"driftshare.io/driftshare/pkg/types"
)

type jsonIndexSingle struct {
	Type      string `json:"t"`
	MessageID string `json:"m"`
	Group     string `json:"n"`
}

type jsonIndexSegment struct {
	Index     int    `json:"i"`
	MessageID string `json:"m"`
	Group     string `json:"n"`
}

type jsonIndexMulti struct {
	Type     string             `json:"t"`
	Count    int                `json:"c"`
	Segments []jsonIndexSegment `json:"s"`
}

type jsonToken struct {
	V            int             `json:"v"`
	ID           string          `json:"id"`
	Tier         string          `json:"tier"`
	FolderPrefix string          `json:"folder-prefix"`
	Version      int             `json:"version"`
	TS           int64           `json:"ts"`
	Idx          json.RawMessage `json:"idx"`
	Chk          string          `json:"chk,omitempty"`
}

// EncodeJSON renders a Token as base64url(JSON), with a checksum computed
// over the canonical object excluding "chk".
func EncodeJSON(t Token) (string, error) {
	idx, err := marshalIndex(t.Index)
	if err != nil {
		return "", fmt.Errorf("sharecodec: marshal index: %w", err)
	}

	jt := jsonToken{
		V: tokenVersion, ID: t.ShareID, Tier: string(t.Tier),
		FolderPrefix: t.FolderPrefix, Version: t.FolderVersion,
		TS: t.Timestamp.Unix(), Idx: idx,
	}

	unchecked, err := json.Marshal(jt)
	if err != nil {
		return "", fmt.Errorf("sharecodec: marshal token: %w", err)
	}
	jt.Chk = crypto.HashHex(unchecked)[:16]

	full, err := json.Marshal(jt)
	if err != nil {
		return "", fmt.Errorf("sharecodec: marshal token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(full), nil
}

// DecodeJSON parses a JSON-framed token, verifying its checksum before
// returning anything.
func DecodeJSON(encoded string) (Token, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Token{}, errInvalidToken("sharecodec.DecodeJSON", err)
	}

	var jt jsonToken
	if err := json.Unmarshal(raw, &jt); err != nil {
		return Token{}, errInvalidToken("sharecodec.DecodeJSON", err)
	}

	wantChk := jt.Chk
	jt.Chk = ""
	unchecked, err := json.Marshal(jt)
	if err != nil {
		return Token{}, errInvalidToken("sharecodec.DecodeJSON", err)
	}
	if crypto.HashHex(unchecked)[:16] != wantChk {
		return Token{}, errInvalidToken("sharecodec.DecodeJSON", fmt.Errorf("checksum mismatch"))
	}

	idx, err := unmarshalIndex(jt.Idx)
	if err != nil {
		return Token{}, errInvalidToken("sharecodec.DecodeJSON", err)
	}

	return Token{
		Version: jt.V, ShareID: jt.ID, Tier: tierFromString(jt.Tier),
		FolderPrefix: jt.FolderPrefix, FolderVersion: jt.Version,
		Timestamp: time.Unix(jt.TS, 0).UTC(), Index: idx,
	}, nil
}

func marshalIndex(idx IndexRef) (json.RawMessage, error) {
	if !idx.Multi {
		return json.Marshal(jsonIndexSingle{Type: "s", MessageID: idx.MessageID, Group: idx.Group})
	}
	segs := make([]jsonIndexSegment, len(idx.Segments))
	for i, s := range idx.Segments {
		segs[i] = jsonIndexSegment{Index: s.Index, MessageID: s.MessageID, Group: s.Group}
	}
	return json.Marshal(jsonIndexMulti{Type: "m", Count: len(segs), Segments: segs})
}

func unmarshalIndex(raw json.RawMessage) (IndexRef, error) {
	var probe struct {
		Type string `json:"t"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return IndexRef{}, err
	}
	switch probe.Type {
	case "s":
		var single jsonIndexSingle
		if err := json.Unmarshal(raw, &single); err != nil {
			return IndexRef{}, err
		}
		return IndexRef{MessageID: single.MessageID, Group: single.Group}, nil
	case "m":
		var multi jsonIndexMulti
		if err := json.Unmarshal(raw, &multi); err != nil {
			return IndexRef{}, err
		}
		segs := make([]SegmentRef, len(multi.Segments))
		for i, s := range multi.Segments {
			segs[i] = SegmentRef{Index: s.Index, MessageID: s.MessageID, Group: s.Group}
		}
		return IndexRef{Multi: true, Segments: segs}, nil
	default:
		return IndexRef{}, fmt.Errorf("unknown index type %q", probe.Type)
	}
}

func tierFromString(s string) types.AccessTier { return types.AccessTier(s) }
