package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword bcrypt-hashes a plaintext password for storage on User.PasswordHash.
// Grounded on the teacher's constant-time credential comparisons in jwt.go —
// same defense-in-depth posture, applied here to password storage instead
// of token comparison.
func HashPassword(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
}

// CheckPassword reports whether plaintext matches hash.
func CheckPassword(hash []byte, plaintext string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(plaintext)) == nil
}
