// Package apperr is the error taxonomy shared by the auth flows and the
// HTTP handlers. Flow code returns *Error values; handlers turn them into
// status codes with HTTPStatus and show Message, never the wrapped error.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for status mapping and auditing.
type Kind int

const (
	KindInfrastructure Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindConflict
	KindDelivery
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindDelivery:
		return "delivery"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "infrastructure"
	}
}

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Code    string // machine-readable reason tag, e.g. "bad_password"
	Message string // safe to show to the user
	Err     error  // internal cause, never shown
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status for the error's kind.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindDelivery:
		return http.StatusBadGateway
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func Validation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func Authentication(code, msg string) *Error {
	return &Error{Kind: KindAuthentication, Code: code, Message: msg}
}

func Authorization(code, msg string) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Message: msg}
}

func Conflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

func RateLimited(msg string) *Error {
	return &Error{Kind: KindRateLimited, Code: "rate_limited", Message: msg}
}

// Delivery wraps a message-send failure.
func Delivery(err error) *Error {
	return &Error{Kind: KindDelivery, Code: "delivery_failed", Message: "Unable to send your login code. Please try again.", Err: err}
}

// Infrastructure wraps a store or system failure behind a generic message.
func Infrastructure(err error) *Error {
	return &Error{Kind: KindInfrastructure, Code: "internal", Message: "Service temporarily unavailable. Please try again.", Err: err}
}

// As extracts an *Error from err's chain. Unclassified errors come back as
// Infrastructure.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Infrastructure(err)
}

// HTTPStatus maps any error to a status code; unclassified errors are 500.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return As(err).Status()
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
