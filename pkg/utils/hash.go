package utils

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashOrRead hashes a plaintext admin password, passing through values that
// are already bcrypt digests so deployments can supply either form.
func HashOrRead(password string) ([]byte, error) {
	if strings.HasPrefix(password, "$2a$") || strings.HasPrefix(password, "$2b$") || strings.HasPrefix(password, "$2y$") {
		return []byte(password), nil // already bcrypt
	}
	return bcrypt.GenerateFromPassword([]byte(password), 10)
}

// CheckPassword compares a candidate password against a bcrypt digest.
func CheckPassword(hash []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
