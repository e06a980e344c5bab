package login

import (
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/dalemusser/securenotes/internal/app/system/auditlog"
	"github.com/dalemusser/securenotes/internal/app/system/auth"
	"github.com/dalemusser/securenotes/internal/app/system/authflow"
	"github.com/dalemusser/securenotes/internal/app/system/ratelimit"
	"github.com/dalemusser/securenotes/internal/testutil/webtest"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(s *webtest.Stack, limiter *ratelimit.Limiter) http.Handler {
	h := NewHandler(s.Flow, s.Sessions, s.Audit, nil, limiter, nil, nil)
	r := chi.NewRouter()
	r.Use(s.Sessions.LoadSession)
	r.Mount("/login", Routes(h))
	r.Mount("/verify", VerifyRoutes(h))
	return r
}

func creds(email, password string) url.Values {
	return url.Values{"email": {email}, "password": {password}}
}

func TestShowLogin(t *testing.T) {
	s := webtest.NewStack(t)
	rec := webtest.NewBrowser().Get(newRouter(s, nil), "/login?return=/activity/")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `action="/login"`)
	assert.Contains(t, body, `name="return" value="/activity/"`)
}

func TestLoginAndVerify(t *testing.T) {
	s := webtest.NewStack(t)
	id := s.Register(t, "a@b.com", "longpassword1")
	h := newRouter(s, nil)
	b := webtest.NewBrowser()

	rec := b.Post(h, "/login", creds("A@B.com", "longpassword1"))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/verify", rec.Header().Get("Location"))

	st := b.State(s.Sessions)
	assert.Equal(t, auth.PendingTwoFactor, st.Kind)
	assert.Equal(t, id, st.UserID)
	assert.Equal(t, "a@b.com", st.Email)

	rec = b.Get(h, "/verify")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a@b.com")

	rec = b.Post(h, "/verify", url.Values{"code": {s.LastCode(t)}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	st = b.State(s.Sessions)
	assert.Equal(t, auth.Authenticated, st.Kind)
	assert.Equal(t, id, st.UserID)
	assert.Equal(t, "a@b.com", st.Username)
	assert.Equal(t, s.Clock.Now().Unix(), st.AuthenticatedAt.Unix())

	assert.Equal(t, []string{
		auditlog.EventRegisterSuccess,
		auditlog.EventLoginPasswordOK2FA,
		auditlog.EventOTPSuccess,
		auditlog.EventLoginSuccess,
	}, s.Audit.Types())
}

func TestLogin_InvalidCredentials(t *testing.T) {
	s := webtest.NewStack(t)
	s.Register(t, "a@b.com", "longpassword1")
	h := newRouter(s, nil)
	b := webtest.NewBrowser()

	for _, c := range []url.Values{creds("a@b.com", "nope-nope"), creds("ghost@b.com", "longpassword1")} {
		rec := b.Post(h, "/login", c)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), authflow.MsgInvalidCredentials)
	}
	assert.Equal(t, auth.Anonymous, b.State(s.Sessions).Kind)
	assert.Empty(t, s.Mail.Sent())
}

func TestLogin_MissingFields(t *testing.T) {
	s := webtest.NewStack(t)
	rec := webtest.NewBrowser().Post(newRouter(s, nil), "/login", creds("", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), authflow.MsgCredentialsRequired)
}

func TestLogin_LockedAccountGets403(t *testing.T) {
	s := webtest.NewStack(t)
	s.Register(t, "a@b.com", "longpassword1")
	h := newRouter(s, nil)
	b := webtest.NewBrowser()

	for i := 0; i < 5; i++ {
		rec := b.Post(h, "/login", creds("a@b.com", "wrong-password"))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := b.Post(h, "/login", creds("a@b.com", "longpassword1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), authflow.MsgAccountLocked)
	assert.Equal(t, auth.Anonymous, b.State(s.Sessions).Kind)
}

func TestLogin_DeliveryFailureGets502(t *testing.T) {
	s := webtest.NewStack(t)
	s.Register(t, "a@b.com", "longpassword1")
	s.Mail.Err = errors.New("smtp down")
	b := webtest.NewBrowser()

	rec := b.Post(newRouter(s, nil), "/login", creds("a@b.com", "longpassword1"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, auth.Anonymous, b.State(s.Sessions).Kind, "no pending state without a delivered code")
}

func TestVerify_RequiresPending(t *testing.T) {
	s := webtest.NewStack(t)
	h := newRouter(s, nil)
	b := webtest.NewBrowser()

	rec := b.Get(h, "/verify")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = b.Post(h, "/verify", url.Values{"code": {"123456"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Empty(t, s.Audit.Types())
}

func TestVerify_BadCodes(t *testing.T) {
	s := webtest.NewStack(t)
	s.Register(t, "a@b.com", "longpassword1")
	h := newRouter(s, nil)
	b := webtest.NewBrowser()

	require.Equal(t, http.StatusSeeOther, b.Post(h, "/login", creds("a@b.com", "longpassword1")).Code)
	code := s.LastCode(t)

	rec := b.Post(h, "/verify", url.Values{"code": {"12ab"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), authflow.MsgMalformedCode)

	wrong := "000000"
	if code == wrong {
		wrong = "999999"
	}
	rec = b.Post(h, "/verify", url.Values{"code": {wrong}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), authflow.MsgInvalidCode)
	assert.Equal(t, auth.PendingTwoFactor, b.State(s.Sessions).Kind)

	rec = b.Post(h, "/verify", url.Values{"code": {code}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, auth.Authenticated, b.State(s.Sessions).Kind)
}

func TestVerify_ReturnTarget(t *testing.T) {
	s := webtest.NewStack(t)
	s.Register(t, "a@b.com", "longpassword1")
	h := newRouter(s, nil)

	form := creds("a@b.com", "longpassword1")
	form.Set("return", "/activity/")

	b := webtest.NewBrowser()
	rec := b.Post(h, "/login", form)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/verify?return=%2Factivity%2F", rec.Header().Get("Location"))

	rec = b.Get(h, "/verify?return=/activity/")
	assert.Contains(t, rec.Body.String(), `name="return" value="/activity/"`)

	// Off-site targets fall back to the dashboard.
	rec = b.Post(h, "/verify", url.Values{"code": {s.LastCode(t)}, "return": {"https://evil.example/"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestLogin_RateLimited(t *testing.T) {
	s := webtest.NewStack(t)
	h := newRouter(s, ratelimit.New(1, 2))
	b := webtest.NewBrowser()

	for i := 0; i < 2; i++ {
		rec := b.Post(h, "/login", creds("a@b.com", "nope-nope"))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := b.Post(h, "/login", creds("a@b.com", "nope-nope"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	last, ok := s.Audit.Last()
	require.True(t, ok)
	assert.Equal(t, auditlog.EventLoginRateLimited, last.Event.Type)
	assert.Equal(t, "/login", last.Event.Details)
	assert.Equal(t, "192.0.2.1", last.Source.IP)

	// Other clients are unaffected and the GET form is never throttled.
	other := webtest.NewBrowser()
	other.RemoteAddr = "198.51.100.9:1000"
	assert.Equal(t, http.StatusUnauthorized, other.Post(h, "/login", creds("a@b.com", "nope-nope")).Code)
	assert.Equal(t, http.StatusOK, b.Get(h, "/login").Code)
}

func TestVerify_SessionSaveFailureIsNotASuccessfulLogin(t *testing.T) {
	s := webtest.NewStack(t)
	s.Register(t, "a@b.com", "longpassword1")
	h := newRouter(s, nil)
	b := webtest.NewBrowser()

	require.Equal(t, http.StatusSeeOther, b.Post(h, "/login", creds("a@b.com", "longpassword1")).Code)
	code := s.LastCode(t)

	s.SessionStore.FailSaves(errors.New("session backend down"))
	rec := b.Post(h, "/verify", url.Values{"code": {code}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), msgSignInAgain)

	s.SessionStore.FailSaves(nil)
	assert.Equal(t, auth.PendingTwoFactor, b.State(s.Sessions).Kind)
	assert.Equal(t, []string{
		auditlog.EventRegisterSuccess,
		auditlog.EventLoginPasswordOK2FA,
	}, s.Audit.Types())
}

func TestLogin_LockedAccountRefusesAccentedSpelling(t *testing.T) {
	s := webtest.NewStack(t)
	s.Register(t, "jose@b.com", "longpassword1")
	h := newRouter(s, nil)
	b := webtest.NewBrowser()

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusUnauthorized, b.Post(h, "/login", creds("jose@b.com", "wrong-password")).Code)
	}

	rec := b.Post(h, "/login", creds("josé@b.com", "longpassword1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, auth.Anonymous, b.State(s.Sessions).Kind)
	assert.Empty(t, s.Mail.Sent())
}

func TestVerify_FormAcceptsSeparatedCode(t *testing.T) {
	s := webtest.NewStack(t)
	s.Register(t, "a@b.com", "longpassword1")
	h := newRouter(s, nil)
	b := webtest.NewBrowser()

	require.Equal(t, http.StatusSeeOther, b.Post(h, "/login", creds("a@b.com", "longpassword1")).Code)
	page := b.Get(h, "/verify").Body.String()
	assert.NotContains(t, page, `pattern=`)
	assert.NotContains(t, page, `maxlength="6"`)

	code := s.LastCode(t)
	rec := b.Post(h, "/verify", url.Values{"code": {code[:3] + " " + code[3:]}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, auth.Authenticated, b.State(s.Sessions).Kind)
}
