package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := NewMasterKey()
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext []byte
		aad       []byte
	}{
		{"empty plaintext", []byte{}, nil},
		{"short plaintext", []byte("hello\n"), nil},
		{"with aad", []byte("segment body"), []byte("segment-id-1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := Seal(key, tt.plaintext, tt.aad)
			require.NoError(t, err)

			got, err := Open(key, sealed, tt.aad)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, got)
		})
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key, err := NewMasterKey()
	require.NoError(t, err)

	sealed, err := Seal(key, []byte("payload"), nil)
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF

	_, err = Open(key, sealed, nil)
	assert.Error(t, err)
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	masterKey, err := NewMasterKey()
	require.NoError(t, err)
	wrappingKey, err := NewMasterKey()
	require.NoError(t, err)

	wrapped, err := Wrap(masterKey, wrappingKey)
	require.NoError(t, err)

	unwrapped, err := Unwrap(wrapped, wrappingKey)
	require.NoError(t, err)
	assert.Equal(t, masterKey, unwrapped)
}

func TestUnwrapWrongKeyFails(t *testing.T) {
	masterKey, err := NewMasterKey()
	require.NoError(t, err)
	wrappingKey, err := NewMasterKey()
	require.NoError(t, err)
	wrongKey, err := NewMasterKey()
	require.NoError(t, err)

	wrapped, err := Wrap(masterKey, wrappingKey)
	require.NoError(t, err)

	_, err = Unwrap(wrapped, wrongKey)
	assert.Error(t, err)
}

func TestNewShareIDShape(t *testing.T) {
	id, err := NewShareID()
	require.NoError(t, err)
	assert.Len(t, id, 24)

	other, err := NewShareID()
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestObfuscateSubjectDeterministic(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	a := ObfuscateSubject(key, "segment-1", 0, 24)
	b := ObfuscateSubject(key, "segment-1", 0, 24)
	assert.Equal(t, a, b)

	c := ObfuscateSubject(key, "segment-1", 1, 24)
	assert.NotEqual(t, a, c)
}

func TestDeriveWrapKeyAndVerificationHashAreIndependent(t *testing.T) {
	wrapSalt, err := NewSalt(16)
	require.NoError(t, err)
	verifySalt, err := NewSalt(16)
	require.NoError(t, err)

	wrapKey, err := DeriveWrapKey("correct horse battery staple", wrapSalt, DefaultScryptParams)
	require.NoError(t, err)
	verifyHash := VerificationHash("correct horse battery staple", verifySalt, DefaultPBKDF2Iterations)

	assert.Len(t, wrapKey, KeySize)
	assert.NotEqual(t, wrapKey, verifyHash)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, seed, err := NewSigningKeypair()
	require.NoError(t, err)

	sig, err := Sign(seed, []byte("share descriptor root"))
	require.NoError(t, err)

	assert.True(t, Verify(pub, []byte("share descriptor root"), sig))
	assert.False(t, Verify(pub, []byte("tampered"), sig))
}
