package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"ascii", []byte("the quick brown fox jumps over the lazy dog")},
		{"all bytes", allBytes()},
		{"needs escape bytes", []byte{0x00, 0x0A, 0x0D, 0x3D, 0xD6, 0xE8, 0xE9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := Encode(tt.data, DefaultLineWidth)
			decoded, err := Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.data, decoded)
		})
	}
}

func TestDecodeRejectsSizeMismatch(t *testing.T) {
	encoded := Encode([]byte("payload"), DefaultLineWidth)
	tampered := strings.Replace(encoded, "size=7", "size=999", 1)
	_, err := Decode(tampered)
	assert.Error(t, err)
}

func TestDecodeRejectsMissingBegin(t *testing.T) {
	_, err := Decode("not a yenc body\r\n=yend size=0 crc32=00000000\r\n")
	assert.Error(t, err)
}

func TestDecodeRejectsCRCMismatch(t *testing.T) {
	data := []byte("segment body contents")
	encoded := Encode(data, DefaultLineWidth)
	idx := strings.LastIndex(encoded, "crc32=")
	require.True(t, idx >= 0)
	tampered := encoded[:idx] + "crc32=deadbeef\r\n"
	_, err := Decode(tampered)
	assert.Error(t, err)
}

func allBytes() []byte {
	b := make([]byte, 256)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}
