// internal/app/system/authutil/password.go
// Package authutil holds the password rules and bcrypt hashing used by
// registration and login.
package authutil

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Password validation constants
const (
	MinPasswordLength = 8
	// bcrypt only looks at the first 72 bytes and x/crypto rejects longer input.
	MaxPasswordLength = 72
	DefaultBcryptCost = 12
)

// Password validation errors. The messages are shown to the user as-is.
var (
	ErrPasswordRequired = errors.New("Password required")
	ErrPasswordTooShort = errors.New("Password must be at least 8 characters")
	ErrPasswordTooLong  = errors.New("Password too long")
	ErrPasswordMismatch = errors.New("Passwords do not match")
	ErrPasswordCommon   = errors.New("Password too common")
)

// commonPasswords is the deny-list, compared after trimming and lowercasing.
// Entries shorter than MinPasswordLength are already rejected by length.
var commonPasswords = map[string]bool{
	"password":    true,
	"12345678":    true,
	"qwerty123":   true,
	"password123": true,
	"123456789":   true,
	"password1":   true,
	"iloveyou":    true,
	"sunshine":    true,
	"princess":    true,
	"football":    true,
	"baseball":    true,
	"superman":    true,
}

// IsCommon reports whether password is on the deny-list.
func IsCommon(password string) bool {
	return commonPasswords[strings.ToLower(strings.TrimSpace(password))]
}

// ValidatePassword checks a new password and its confirmation, returning the
// first rule broken in this order: required, length, confirmation, deny-list.
func ValidatePassword(password, confirm string) error {
	if password == "" {
		return ErrPasswordRequired
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	if IsCommon(password) {
		return ErrPasswordCommon
	}
	return nil
}

// Hasher hashes and checks passwords with a fixed bcrypt cost.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher; cost outside bcrypt's range falls back to
// DefaultBcryptCost.
func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return Hasher{Cost: cost}
}

// Hash returns the bcrypt hash of password.
func (h Hasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Check compares a plain-text password with a bcrypt hash. An empty hash
// never matches.
func (h Hasher) Check(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
