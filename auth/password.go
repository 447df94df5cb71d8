package auth

import (
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// PasswordPolicy mirrors the gateway's fixed password requirements;
// only MinLength is configurable.
type PasswordPolicy struct {
	MinLength int
}

// ValidatePassword rejects a candidate password before it ever reaches
// the hasher. Requires at least one upper, lower, digit, and special
// character in addition to the configured minimum length.
func ValidatePassword(password string, policy PasswordPolicy) error {
	minLen := policy.MinLength
	if minLen <= 0 {
		minLen = 12
	}
	if len(password) < minLen {
		return fmt.Errorf("password must be at least %d characters", minLen)
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSpecial {
		return fmt.Errorf("password must contain an uppercase letter, lowercase letter, digit, and special character")
	}
	return nil
}

// bcryptCost is the configured work factor. 12 rounds is the spec's
// floor; bcrypt's own ceiling (31) is never approached in practice.
const bcryptCost = 12

// HashPassword returns the salted, adaptive hash of plaintext.
func HashPassword(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// VerifyPassword compares plaintext against a stored hash in constant
// time (bcrypt.CompareHashAndPassword is itself constant-time over the
// hash comparison).
func VerifyPassword(plaintext, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plaintext)) == nil
}
