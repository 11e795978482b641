// Package credential hashes and verifies login passwords. It is a stateless
// utility; nothing here touches storage.
package credential

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hash derives a salted one-way digest from the plaintext password. Two calls
// with the same plaintext produce different digests, so digests must never be
// compared for equality; use Verify.
func Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("credential: hash password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether the plaintext matches the stored digest. It never
// returns an error: a malformed digest simply fails verification.
func Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
