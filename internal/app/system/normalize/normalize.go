// Package normalize folds user input into the canonical forms the stores
// and the auth flow compare against.
package normalize

import (
	"strings"

	"github.com/dalemusser/waffle/pantry/text"
)

// Email trims whitespace and lowercases. It is the form shown back to the
// user and stored as the account's address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Key is the comparison form of an email: Email plus removal of combining
// marks, so "José@B.com" and "jose@b.com" share one key. User lookup, the
// unique index and lockout rows all key on it.
func Key(s string) string {
	return text.Fold(s)
}

// Code strips the separators people type or paste into a login code
// ("123 456", "123-456"). It does not validate; otp.WellFormed does.
func Code(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '-':
			return -1
		}
		return r
	}, s)
}
