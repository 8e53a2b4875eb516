// Package crypto provides the symmetric AEAD, key-wrap, passphrase KDF,
// folder signing, and content-hashing primitives used across the pipeline.
// The AEAD convention (nonce prepended to ciphertext, AES-256-GCM) follows
// a secrets manager; the KDFs and signing scheme follow from there.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

const KeySize = 32 // AES-256

// Seal encrypts plaintext with a fresh random nonce, returning nonce||ciphertext.
// aad, when non-nil, is authenticated but not encrypted (e.g. a segment id).
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("crypto: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

// SealWithNonce is Seal with an explicit nonce (used for redundant copies
// that must each carry a distinct IV, generated once by the caller).
func SealWithNonce(key, nonce, plaintext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("crypto: nonce must be %d bytes, got %d", gcm.NonceSize(), len(nonce))
	}
	out := gcm.Seal(nil, nonce, plaintext, aad)
	return append(append([]byte{}, nonce...), out...), nil
}

// NewNonce returns a fresh random GCM nonce of the standard 12-byte size.
func NewNonce() ([]byte, error) {
	nonce := make([]byte, 12)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}
	return nonce, nil
}

// Open decrypts nonce||ciphertext produced by Seal or SealWithNonce.
// A tag failure surfaces as a plain error; callers must classify it as an
// integrity error, never folded into a generic failure.
func Open(key, sealed, aad []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("crypto: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("crypto: ciphertext too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("crypto: authentication failed: %w", err)
	}
	return plaintext, nil
}

// NewMasterKey generates a fresh 32-byte share or folder master key.
func NewMasterKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return key, nil
}

// Wrap encrypts key under wrappingKey, returning raw nonce||ciphertext
// bytes. Callers that need the wire form base64-encode this themselves
// (storage uses base64, which is a presentation
// concern of the caller, not of the primitive).
func Wrap(key, wrappingKey []byte) ([]byte, error) {
	return Seal(wrappingKey, key, nil)
}

// Unwrap reverses Wrap. A wrong wrapping key and a corrupted wrapped
// payload are indistinguishable to the caller, by design (no oracle).
func Unwrap(wrapped, wrappingKey []byte) ([]byte, error) {
	return Open(wrappingKey, wrapped, nil)
}
