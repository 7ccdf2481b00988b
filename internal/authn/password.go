// Package authn implements server-wide password storage and
// verification, per the single-password auth model of §3/§6.
package authn

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt hash strings always start with one of these prefixes; a
// config value matching one is treated as already-hashed rather than
// as a plaintext password to hash on demand.
var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// IsHashed reports whether stored looks like a bcrypt hash rather
// than a plaintext password.
func IsHashed(stored string) bool {
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(stored, p) {
			return true
		}
	}
	return false
}

// Hash produces a bcrypt hash of a plaintext password, suitable for
// storing in the config file's password key.
func Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify checks a candidate password against the stored credential,
// which may be a bcrypt hash or a plaintext string. Each branch
// compares in constant time with respect to the password's content
// (bcrypt for hashes, crypto/subtle for plaintext); the bcrypt branch
// is much slower, so timing does differ between the two forms.
func Verify(stored, candidate string) bool {
	if IsHashed(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}
