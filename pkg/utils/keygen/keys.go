package keygen

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// DefaultTokenBytes is the entropy of generated shared secrets.
const DefaultTokenBytes = 32

// GenerateToken returns a random URL-safe secret built from n random bytes.
func GenerateToken(n int) (string, error) {
	if n <= 0 {
		n = DefaultTokenBytes
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("keygen: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Digest is the BLAKE2b-256 sum of token. Secrets are compared by digest so
// the comparison time does not depend on the secret's length.
func Digest(token string) []byte {
	sum := blake2b.Sum256([]byte(token))
	return sum[:]
}

// Fingerprint is a short, loggable identifier for a secret.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	return hex.EncodeToString(Digest(token)[:6])
}
