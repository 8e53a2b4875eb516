package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

// ScryptParams are the cost parameters for passphrase-based key derivation.
type ScryptParams struct {
	N int
	R int
	P int
}

// DefaultScryptParams are the passphrase-tier KDF cost parameters.
var DefaultScryptParams = ScryptParams{N: 16384, R: 8, P: 1}

// NewSalt returns n random bytes suitable for use as a KDF salt.
func NewSalt(n int) ([]byte, error) {
	salt := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("crypto: generate salt: %w", err)
	}
	return salt, nil
}

// DeriveWrapKey derives a 32-byte wrapping key from a passphrase via
// scrypt. This is the key a passphrase-tier share's master key is wrapped
// with; it must never be derived from the same salt as VerificationHash.
func DeriveWrapKey(passphrase string, salt []byte, p ScryptParams) ([]byte, error) {
	if p == (ScryptParams{}) {
		p = DefaultScryptParams
	}
	key, err := scrypt.Key([]byte(passphrase), salt, p.N, p.R, p.P, KeySize)
	if err != nil {
		return nil, fmt.Errorf("crypto: scrypt: %w", err)
	}
	return key, nil
}

// DefaultPBKDF2Iterations is the iteration count for the passphrase verification hash.
const DefaultPBKDF2Iterations = 100_000

// VerificationHash computes a PBKDF2-SHA256 hash of a passphrase, used
// solely to present the "wrong passphrase" response. It is derived with a
// distinct salt from the scrypt wrap key, and the wrap key is never
// derived from this hash.
func VerificationHash(passphrase string, salt []byte, iterations int) []byte {
	if iterations <= 0 {
		iterations = DefaultPBKDF2Iterations
	}
	return pbkdf2.Key([]byte(passphrase), salt, iterations, sha256.Size, sha256.New)
}
