package webtest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/dalemusser/securenotes/internal/app/system/auth"
)

// TestUser represents user data for testing HTTP handlers.
type TestUser struct {
	ID    int64
	Email string
}

// Alice returns a TestUser for handler tests.
func Alice() TestUser {
	return TestUser{ID: 7, Email: "alice@example.com"}
}

// Authenticated is the state of a session that completed both factors at at.
func (u TestUser) Authenticated(at time.Time) auth.State {
	return auth.State{
		Kind:            auth.Authenticated,
		UserID:          u.ID,
		Username:        u.Email,
		LastActivity:    at,
		AuthenticatedAt: at,
	}
}

// Pending is the state of a session awaiting the user's second factor.
func (u TestUser) Pending() auth.State {
	return auth.State{Kind: auth.PendingTwoFactor, UserID: u.ID, Email: u.Email}
}

// NewRequest creates an HTTP request for testing.
func NewRequest(method, target string) *http.Request {
	return httptest.NewRequest(method, target, nil)
}

// NewRequestWithState creates a request whose context carries st, as if
// auth.LoadSession had run.
func NewRequestWithState(method, target string, st auth.State) *http.Request {
	return auth.WithTestState(httptest.NewRequest(method, target, nil), st)
}

// ResponseRecorder wraps httptest.ResponseRecorder with helper methods.
type ResponseRecorder struct {
	*httptest.ResponseRecorder
}

// NewRecorder creates a new ResponseRecorder.
func NewRecorder() *ResponseRecorder {
	return &ResponseRecorder{httptest.NewRecorder()}
}

// AssertStatus checks the response status code.
func (r *ResponseRecorder) AssertStatus(t interface{ Errorf(string, ...any) }, expected int) {
	if r.Code != expected {
		t.Errorf("status code: got %d, want %d", r.Code, expected)
	}
}

// AssertRedirect checks for a 303 to the expected location.
func (r *ResponseRecorder) AssertRedirect(t interface{ Errorf(string, ...any) }, expectedLocation string) {
	if r.Code != http.StatusSeeOther {
		t.Errorf("expected 303 redirect, got %d", r.Code)
	}
	location := r.Header().Get("Location")
	if location != expectedLocation {
		t.Errorf("redirect location: got %q, want %q", location, expectedLocation)
	}
}

// AssertContains checks if the response body contains the expected string.
func (r *ResponseRecorder) AssertContains(t interface{ Errorf(string, ...any) }, expected string) {
	if !strings.Contains(r.Body.String(), expected) {
		t.Errorf("response body does not contain %q", expected)
	}
}
