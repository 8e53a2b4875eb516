package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// HeaderVersion is the codec version announced in every article's header line.
const HeaderVersion = "UNS/1"

// Header is the one-line announcement at the top of an article body:
// "UNS/1 sid=<hex> r=<i>". sid is the ciphertext hash prefix, never the
// secret segment id.
type Header struct {
	CiphertextHashPrefix string
	RedundancyIndex      int
}

func (h Header) String() string {
	return fmt.Sprintf("%s sid=%s r=%d", HeaderVersion, h.CiphertextHashPrefix, h.RedundancyIndex)
}

// ParseHeader parses the first line of an article body.
func ParseHeader(line string) (Header, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != HeaderVersion {
		return Header{}, fmt.Errorf("codec: malformed article header %q", line)
	}
	var h Header
	for _, f := range fields[1:] {
		kv := strings.SplitN(f, "=", 2)
		if len(kv) != 2 {
			return Header{}, fmt.Errorf("codec: malformed header field %q", f)
		}
		switch kv[0] {
		case "sid":
			h.CiphertextHashPrefix = kv[1]
		case "r":
			n, err := strconv.Atoi(kv[1])
			if err != nil {
				return Header{}, fmt.Errorf("codec: malformed redundancy index %q: %w", kv[1], err)
			}
			h.RedundancyIndex = n
		}
	}
	if h.CiphertextHashPrefix == "" {
		return Header{}, fmt.Errorf("codec: missing sid in header %q", line)
	}
	return h, nil
}

// AssembleArticle builds a full article body: the header line followed by
// the yEnc-framed ciphertext.
func AssembleArticle(h Header, ciphertext []byte, lineWidth int) string {
	return h.String() + "\r\n" + Encode(ciphertext, lineWidth)
}

// ParseArticle splits an article body into its header and decoded ciphertext.
func ParseArticle(body string) (Header, []byte, error) {
	idx := strings.IndexAny(body, "\r\n")
	if idx < 0 {
		return Header{}, nil, fmt.Errorf("codec: article body has no header line")
	}
	headerLine := body[:idx]
	rest := body[idx:]
	rest = strings.TrimLeft(rest, "\r\n")

	h, err := ParseHeader(headerLine)
	if err != nil {
		return Header{}, nil, err
	}
	ciphertext, err := Decode(rest)
	if err != nil {
		return Header{}, nil, fmt.Errorf("codec: decode article body: %w", err)
	}
	return h, ciphertext, nil
}
