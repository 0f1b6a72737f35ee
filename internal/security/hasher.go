package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultHashIterations is the PBKDF2 iteration count for new
	// credentials. It is stored per credential so it can be raised
	// later without invalidating existing rows.
	DefaultHashIterations = 100000

	saltBytes   = 32
	digestBytes = 32
)

// Hasher derives and verifies salted password digests using
// PBKDF2-SHA256. Verification cost is the same whether or not the
// password matches, and comparison is constant-time.
type Hasher struct {
	iterations int
}

// NewHasher creates a hasher with the given iteration count
func NewHasher(iterations int) *Hasher {
	if iterations <= 0 {
		iterations = DefaultHashIterations
	}
	return &Hasher{iterations: iterations}
}

// Iterations returns the iteration count used for new digests
func (h *Hasher) Iterations() int {
	return h.iterations
}

// Hash derives a digest from the password with a fresh random salt.
// Both digest and salt are returned hex-encoded.
func (h *Hasher) Hash(password string) (digest, salt string, err error) {
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate salt: %w", err)
	}
	salt = hex.EncodeToString(raw)
	digest = h.derive(password, salt, h.iterations)
	return digest, salt, nil
}

// Verify checks the password against a stored digest and salt using
// the hasher's iteration count.
func (h *Hasher) Verify(password, digest, salt string) bool {
	return h.VerifyWith(password, digest, salt, h.iterations)
}

// VerifyWith checks the password using the iteration count the
// credential was stored with.
func (h *Hasher) VerifyWith(password, digest, salt string, iterations int) bool {
	if iterations <= 0 {
		iterations = h.iterations
	}
	computed := h.derive(password, salt, iterations)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}

func (h *Hasher) derive(password, salt string, iterations int) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), iterations, digestBytes, sha256.New)
	return hex.EncodeToString(key)
}
