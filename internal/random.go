package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// NewCode generates a fixed-length numeric challenge code from a
// cryptographically strong source. Each digit is drawn independently so the
// distribution is uniform regardless of length.
func NewCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid code digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}

// HashCode returns the digest stored and compared in place of the plaintext
// code; the plaintext only travels to the notifier.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// NewID returns a random identifier for identities and audit events.
func NewID() string {
	return uuid.NewString()
}
