package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost = 10

	// maxPasswordBytes is the longest input bcrypt hashes without truncating.
	maxPasswordBytes = 72
)

// ValidPassword reports whether password can be hashed for a login.
func ValidPassword(password string) bool {
	return password != "" && len(password) <= maxPasswordBytes
}

// HashPassword generates a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	if !ValidPassword(password) {
		return "", ErrInvalidPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword checks password against a stored hash. A mismatch is
// ErrWrongPassword; an unreadable hash is reported as is.
func ComparePassword(hashedPassword, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrWrongPassword
	default:
		return fmt.Errorf("compare password: %w", err)
	}
}
