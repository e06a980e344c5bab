// Package otp issues and verifies the six-digit login codes sent by email
// after a successful password check.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/dalemusser/securenotes/internal/app/store/loginotp"
	"github.com/dalemusser/securenotes/internal/domain/models"
)

// CodeLength is the number of digits in a code.
const CodeLength = 6

// DefaultTTL is how long a code stays valid when Config.TTL is zero.
const DefaultTTL = 5 * time.Minute

var codeSpace = big.NewInt(1_000_000)

var (
	ErrInsecureRandomness = errors.New("otp: secure random source unavailable")
	ErrMalformedCode      = errors.New("otp: code must be exactly 6 digits")
	ErrNoOTPIssued        = errors.New("otp: no code issued")
	ErrOTPAlreadyUsed     = errors.New("otp: code already used")
	ErrOTPExpired         = errors.New("otp: code expired")
	ErrOTPMismatch        = errors.New("otp: code mismatch")
)

// Reason returns the audit reason tag for a verification error.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedCode):
		return "malformed_code"
	case errors.Is(err, ErrNoOTPIssued):
		return "no_otp"
	case errors.Is(err, ErrOTPAlreadyUsed):
		return "used"
	case errors.Is(err, ErrOTPExpired):
		return "expired"
	case errors.Is(err, ErrOTPMismatch):
		return "mismatch"
	default:
		return "error"
	}
}

// Store is the persistence the service needs.
type Store interface {
	Insert(ctx context.Context, userID int64, code string, expiresAt time.Time) (*models.LoginOTP, error)
	Latest(ctx context.Context, userID int64) (*models.LoginOTP, error)
	MarkUsed(ctx context.Context, id int64) (bool, error)
}

type Config struct {
	TTL time.Duration
}

// Service issues and verifies codes.
type Service struct {
	store Store
	ttl   time.Duration

	// Now and Rand are replaceable in tests. Rand must be a CSPRNG.
	Now  func() time.Time
	Rand io.Reader
}

func New(store Store, cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Service{
		store: store,
		ttl:   cfg.TTL,
		Now:   time.Now,
		Rand:  rand.Reader,
	}
}

// TTL returns how long issued codes stay valid.
func (s *Service) TTL() time.Duration { return s.ttl }

// GenerateCode returns a code drawn uniformly from 000000-999999.
func GenerateCode(r io.Reader) (string, error) {
	n, err := rand.Int(r, codeSpace)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInsecureRandomness, err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// Issue creates and stores a fresh code for userID and returns it. Earlier
// codes for the user stop being accepted because only the latest row is
// ever checked.
func (s *Service) Issue(ctx context.Context, userID int64) (string, error) {
	code, err := GenerateCode(s.Rand)
	if err != nil {
		return "", err
	}
	if _, err := s.store.Insert(ctx, userID, code, s.Now().UTC().Add(s.ttl)); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	return code, nil
}

// WellFormed reports whether code is exactly six ASCII digits.
func WellFormed(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// Verify checks code against the user's latest code and consumes it on a
// match. A wrong guess leaves the code usable until it expires.
//
// Errors, in the order they are checked: ErrMalformedCode, ErrNoOTPIssued,
// ErrOTPAlreadyUsed, ErrOTPExpired, ErrOTPMismatch. Anything else is a store
// failure.
func (s *Service) Verify(ctx context.Context, userID int64, code string) error {
	if !WellFormed(code) {
		return ErrMalformedCode
	}

	latest, err := s.store.Latest(ctx, userID)
	if errors.Is(err, loginotp.ErrNotFound) {
		return ErrNoOTPIssued
	}
	if err != nil {
		return fmt.Errorf("load otp: %w", err)
	}

	if latest.Used {
		return ErrOTPAlreadyUsed
	}
	if !latest.ExpiresAt.After(s.Now()) {
		return ErrOTPExpired
	}
	if subtle.ConstantTimeCompare([]byte(latest.Code), []byte(code)) != 1 {
		return ErrOTPMismatch
	}

	ok, err := s.store.MarkUsed(ctx, latest.ID)
	if err != nil {
		return fmt.Errorf("mark otp used: %w", err)
	}
	if !ok {
		// Another request consumed it between the read and the update.
		return ErrOTPAlreadyUsed
	}
	return nil
}
