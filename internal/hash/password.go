// Package hash implements C3's PasswordHasher: an adaptive, salted hash
// over bcrypt, following the corpus's use of golang.org/x/crypto for
// password-adjacent cryptography.
package hash

import "golang.org/x/crypto/bcrypt"

// DefaultCost is the bcrypt work factor used when none is specified.
const DefaultCost = bcrypt.DefaultCost

// Hash produces a salted bcrypt digest of plain.
func Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plain matches the stored bcrypt digest. A
// mismatch and a malformed stored value are indistinguishable to the
// caller: both return false, no error (§7, AuthError leaks no detail).
func Verify(plain, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plain)) == nil
}
