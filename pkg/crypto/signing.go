package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// NewSigningKeypair generates a fresh Ed25519 keypair for a folder. The
// seed is what gets persisted in the Folder row; the public key is
// published with the folder's first share and pinned thereafter.
func NewSigningKeypair() (publicKey, seed []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: generate ed25519 key: %w", err)
	}
	return pub, priv.Seed(), nil
}

// Sign signs message with the private key reconstructed from seed.
func Sign(seed, message []byte) ([]byte, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return ed25519.Sign(priv, message), nil
}

// Verify checks a signature produced by Sign against the folder's public key.
func Verify(publicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(publicKey, message, signature)
}
