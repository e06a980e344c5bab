// Package authflow orchestrates sign-in: lockout check, password check, code
// issuance and delivery, code verification, registration and logout. It is
// independent of HTTP; handlers translate its *apperr.Error results.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	userstore "github.com/dalemusser/securenotes/internal/app/store/users"
	"github.com/dalemusser/securenotes/internal/app/system/apperr"
	"github.com/dalemusser/securenotes/internal/app/system/auditlog"
	"github.com/dalemusser/securenotes/internal/app/system/authutil"
	"github.com/dalemusser/securenotes/internal/app/system/inputval"
	"github.com/dalemusser/securenotes/internal/app/system/lockout"
	"github.com/dalemusser/securenotes/internal/app/system/mailer"
	"github.com/dalemusser/securenotes/internal/app/system/normalize"
	"github.com/dalemusser/securenotes/internal/app/system/otp"
	"github.com/dalemusser/securenotes/internal/domain/models"
	"go.uber.org/zap"
)

// User-facing messages.
const (
	MsgCredentialsRequired = "Email and password required"
	MsgInvalidCredentials  = "Invalid email or password"
	MsgAccountLocked       = "Too many failed attempts. Try again later."
	MsgInvalidCode         = "Invalid or expired code"
	MsgMalformedCode       = "Enter the 6-digit code from your email"
	MsgEmailTaken          = "Email already registered"
)

// UserStore is the credential store the flows need.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, email, passwordHash string) (int64, error)
}

// Mailer delivers the second-factor code.
type Mailer interface {
	Send(ctx context.Context, email mailer.Email) error
}

// Challenge is the identity that passed the password check and now owes a
// second factor.
type Challenge struct {
	UserID int64
	Email  string
}

// Deps wires a Service.
type Deps struct {
	Users   UserStore
	Lockout *lockout.Tracker
	OTP     *otp.Service
	Hasher  authutil.Hasher
	Mailer  Mailer
	Audit   auditlog.Recorder
	Logger  *zap.Logger
	AppName string
}

// Service runs the authentication flows.
type Service struct {
	users   UserStore
	lockout *lockout.Tracker
	otp     *otp.Service
	hasher  authutil.Hasher
	mail    Mailer
	audit   auditlog.Recorder
	logger  *zap.Logger
	appName string

	dummyOnce sync.Once
	dummyHash string
}

// New creates a Service.
func New(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.AppName == "" {
		d.AppName = "SecureNotes"
	}
	return &Service{
		users:   d.Users,
		lockout: d.Lockout,
		otp:     d.OTP,
		hasher:  d.Hasher,
		mail:    d.Mailer,
		audit:   d.Audit,
		logger:  d.Logger,
		appName: d.AppName,
	}
}

func (s *Service) record(src auditlog.Source, ev auditlog.Event) {
	if s.audit != nil {
		s.audit.Record(src, ev)
	}
}

// Login checks lockout and credentials, then issues and sends a code.
//
// Errors: Validation (missing fields), Authorization (locked), Authentication
// (any credential failure, one message for all cases), Delivery (code not
// sent), Infrastructure (store failures).
func (s *Service) Login(ctx context.Context, src auditlog.Source, email, password string) (*Challenge, error) {
	email = normalize.Email(email)
	if email == "" || password == "" {
		return nil, apperr.Validation("missing_fields", MsgCredentialsRequired)
	}

	locked, err := s.lockout.CheckLocked(ctx, email)
	if err != nil {
		return nil, apperr.Infrastructure(fmt.Errorf("check lockout: %w", err))
	}
	if locked {
		s.record(src, auditlog.Event{Type: auditlog.EventLoginBlockedLockout, Username: email, Details: auditlog.ReasonLocked})
		return nil, apperr.Authorization("locked", MsgAccountLocked)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, userstore.ErrNotFound) {
		return nil, apperr.Infrastructure(fmt.Errorf("find user: %w", err))
	}

	var reason string
	switch {
	case user == nil:
		// Spend the same bcrypt work as a real check.
		s.hasher.Check(s.dummy(), password)
		reason = auditlog.ReasonUnknownEmail
	case user.PasswordHash == "":
		reason = auditlog.ReasonNoPassword
	case !s.hasher.Check(user.PasswordHash, password):
		reason = auditlog.ReasonBadPassword
	}

	if reason != "" {
		if _, err := s.lockout.RecordFailure(ctx, email); err != nil {
			return nil, apperr.Infrastructure(fmt.Errorf("record failure: %w", err))
		}
		ev := auditlog.Event{Type: auditlog.EventLoginFailed, Username: email, Details: reason}
		if user != nil {
			ev.UserID = user.ID
		}
		s.record(src, ev)
		return nil, apperr.Authentication(reason, MsgInvalidCredentials)
	}

	if err := s.lockout.RecordSuccess(ctx, email); err != nil {
		return nil, apperr.Infrastructure(fmt.Errorf("reset lockout: %w", err))
	}

	code, err := s.otp.Issue(ctx, user.ID)
	if err != nil {
		return nil, apperr.Infrastructure(fmt.Errorf("issue code: %w", err))
	}

	if err := s.sendCode(ctx, user.Email, code); err != nil {
		s.record(src, auditlog.Event{
			Type:     auditlog.EventOTPDeliveryFailed,
			UserID:   user.ID,
			Username: user.Email,
			Details:  auditlog.ReasonSMTPError,
		})
		s.logger.Warn("login code delivery failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return nil, apperr.Delivery(err)
	}

	s.record(src, auditlog.Event{Type: auditlog.EventLoginPasswordOK2FA, UserID: user.ID, Username: user.Email})
	return &Challenge{UserID: user.ID, Email: user.Email}, nil
}

func (s *Service) sendCode(ctx context.Context, to, code string) error {
	text, html, err := mailer.LoginCodeEmail(mailer.LoginCodeEmailData{
		AppName:   s.appName,
		Code:      code,
		ExpiresIn: s.otp.TTL(),
	})
	if err != nil {
		return fmt.Errorf("render login code email: %w", err)
	}
	return s.mail.Send(ctx, mailer.Email{
		To:       to,
		Subject:  mailer.LoginCodeSubject,
		TextBody: text,
		HTMLBody: html,
	})
}

// dummy returns a hash used to equalize timing for unknown emails.
func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("securenotes-timing-equalizer")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

// Verify checks and consumes the code for a pending challenge. It records
// failures only; once the caller has promoted the session it reports the
// sign-in through CompleteLogin.
//
// Errors: Validation (code not six digits), Authentication (no code, used,
// expired or wrong), Infrastructure (store failures).
func (s *Service) Verify(ctx context.Context, src auditlog.Source, pending Challenge, code string) error {
	code = normalize.Code(code)
	if !otp.WellFormed(code) {
		s.record(src, auditlog.Event{
			Type:     auditlog.EventOTPFailed,
			UserID:   pending.UserID,
			Username: pending.Email,
			Details:  auditlog.ReasonMalformedCode,
		})
		return apperr.Validation(auditlog.ReasonMalformedCode, MsgMalformedCode)
	}

	err := s.otp.Verify(ctx, pending.UserID, code)
	if err != nil {
		reason := otp.Reason(err)
		if reason == "error" {
			return apperr.Infrastructure(fmt.Errorf("verify code: %w", err))
		}
		s.record(src, auditlog.Event{
			Type:     auditlog.EventOTPFailed,
			UserID:   pending.UserID,
			Username: pending.Email,
			Details:  reason,
		})
		return apperr.Authentication(reason, MsgInvalidCode)
	}

	return nil
}

// CompleteLogin audits a finished sign-in. Call it only after the session
// holds the authenticated identity.
func (s *Service) CompleteLogin(src auditlog.Source, pending Challenge) {
	s.record(src, auditlog.Event{Type: auditlog.EventOTPSuccess, UserID: pending.UserID, Username: pending.Email})
	s.record(src, auditlog.Event{Type: auditlog.EventLoginSuccess, UserID: pending.UserID, Username: pending.Email})
}

// registerInput carries the email rules; password rules live in authutil.
type registerInput struct {
	Email string `validate:"required,max=255" label:"Email" msg:"required=Email required;max=Email too long"`
}

// Register creates an account and returns its id.
//
// Errors: Validation (the first broken rule, in the order email required,
// email length, password required, password length, confirmation,
// deny-list), Conflict (email taken), Infrastructure.
func (s *Service) Register(ctx context.Context, src auditlog.Source, email, password, confirm string) (int64, error) {
	email = normalize.Email(email)

	if res := inputval.Validate(registerInput{Email: email}); res.HasErrors() {
		return 0, apperr.Validation("invalid_email", res.First())
	}
	if err := authutil.ValidatePassword(password, confirm); err != nil {
		return 0, apperr.Validation("invalid_password", err.Error())
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return 0, apperr.Infrastructure(fmt.Errorf("hash password: %w", err))
	}

	id, err := s.users.Create(ctx, email, hash)
	if errors.Is(err, userstore.ErrDuplicateEmail) {
		return 0, apperr.Conflict("email_taken", MsgEmailTaken)
	}
	if err != nil {
		return 0, apperr.Infrastructure(fmt.Errorf("create user: %w", err))
	}

	s.record(src, auditlog.Event{Type: auditlog.EventRegisterSuccess, UserID: id, Username: email})
	return id, nil
}

// Logout audits a manual logout when the source carries an identity. The
// caller clears the session regardless.
func (s *Service) Logout(_ context.Context, src auditlog.Source) {
	if src.UserID == 0 {
		return
	}
	s.record(src, auditlog.Event{Type: auditlog.EventLogoutManual})
}
