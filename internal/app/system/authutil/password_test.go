package authutil

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		confirm  string
		wantErr  error
	}{
		{"valid", "longpassword1", "longpassword1", nil},
		{"valid exactly 8", "abcdefgh", "abcdefgh", nil},
		{"valid with spaces", "my secret password", "my secret password", nil},
		{"valid at max", strings.Repeat("a", 72), strings.Repeat("a", 72), nil},

		{"empty", "", "", ErrPasswordRequired},
		{"too short", "abcdefg", "abcdefg", ErrPasswordTooShort},
		{"too long", strings.Repeat("a", 73), strings.Repeat("a", 73), ErrPasswordTooLong},
		{"mismatch", "longpassword1", "longpassword2", ErrPasswordMismatch},

		{"common password", "password", "password", ErrPasswordCommon},
		{"common 12345678", "12345678", "12345678", ErrPasswordCommon},
		{"common qwerty123", "qwerty123", "qwerty123", ErrPasswordCommon},
		{"common password123 upper", "PASSWORD123", "PASSWORD123", ErrPasswordCommon},
		{"common padded", " password ", " password ", ErrPasswordCommon},

		// Mismatch is reported before the deny-list.
		{"common and mismatch", "password", "password!", ErrPasswordMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password, tt.confirm)
			if err != tt.wantErr {
				t.Errorf("ValidatePassword(%q) = %v, want %v", tt.password, err, tt.wantErr)
			}
		})
	}
}

func TestHasher_HashAndCheck(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	password := "mySecurePassword123"

	hash, err := h.Hash(password)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == password {
		t.Error("Hash() returned the plain-text password")
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("Hash() = %q, want bcrypt format", hash)
	}

	if !h.Check(hash, password) {
		t.Error("Check() = false for correct password")
	}
	if h.Check(hash, "wrongPassword") {
		t.Error("Check() = true for wrong password")
	}
	if h.Check("", password) {
		t.Error("Check() = true for empty hash")
	}
	if h.Check("not-a-bcrypt-hash", password) {
		t.Error("Check() = true for invalid hash")
	}
}

func TestHasher_SaltedHashesDiffer(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	a, err := h.Hash("samePassword1")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	b, err := h.Hash("samePassword1")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if a == b {
		t.Error("two hashes of the same password are identical")
	}
}

func TestNewHasher_CostBounds(t *testing.T) {
	tests := []struct {
		cost int
		want int
	}{
		{0, DefaultBcryptCost},
		{bcrypt.MinCost - 1, DefaultBcryptCost},
		{bcrypt.MaxCost + 1, DefaultBcryptCost},
		{bcrypt.MinCost, bcrypt.MinCost},
		{10, 10},
	}
	for _, tt := range tests {
		if got := NewHasher(tt.cost).Cost; got != tt.want {
			t.Errorf("NewHasher(%d).Cost = %d, want %d", tt.cost, got, tt.want)
		}
	}
}

func TestIsCommon(t *testing.T) {
	if !IsCommon("Qwerty123") {
		t.Error("IsCommon(Qwerty123) = false")
	}
	if IsCommon("correct horse battery") {
		t.Error("IsCommon(correct horse battery) = true")
	}
}
