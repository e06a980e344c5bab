// Package webtest wires the auth flow over in-memory fakes and a cookie
// session store, and drives handlers with a cookie-carrying browser, so
// feature tests exercise the real protocol without MongoDB or SMTP.
package webtest

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/securenotes/internal/app/system/auditlog"
	"github.com/dalemusser/securenotes/internal/app/system/auth"
	"github.com/dalemusser/securenotes/internal/app/system/authflow"
	"github.com/dalemusser/securenotes/internal/app/system/authutil"
	"github.com/dalemusser/securenotes/internal/app/system/lockout"
	"github.com/dalemusser/securenotes/internal/app/system/otp"
	"github.com/dalemusser/securenotes/internal/testutil"
	"github.com/dalemusser/securenotes/internal/testutil/fakes"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// SessionKey is a 32-byte key accepted by auth.NewStore.
const SessionKey = "k7Qz0pXv3nR8sT2wY5bC9dF1gH4jL6mN"

// Stack is a fully wired flow with its fakes exposed for inspection.
type Stack struct {
	Users    *fakes.Users
	Locks    *fakes.LockoutStore
	OTPs     *fakes.OTPStore
	Mail     *fakes.Mailer
	Audit    *fakes.Recorder
	Clock    *fakes.Clock
	Flow     *authflow.Service
	Sessions *auth.SessionManager

	// SessionStore backs Sessions; FailSaves simulates a session backend outage.
	SessionStore *fakes.SessionStore
}

// NewStack builds a Stack with MAX_FAILS 5, a 15 minute lock, a 5 minute
// code lifetime and a 12 hour session lifetime, all on one fake clock.
func NewStack(t *testing.T) *Stack {
	t.Helper()
	testutil.MustBootTemplates(t)

	s := &Stack{
		Users: fakes.NewUsers(),
		Locks: fakes.NewLockoutStore(),
		OTPs:  fakes.NewOTPStore(),
		Mail:  &fakes.Mailer{},
		Audit: &fakes.Recorder{},
		Clock: fakes.NewClock(time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)),
	}

	tracker := lockout.New(s.Locks, lockout.Config{MaxFails: 5, LockFor: 15 * time.Minute})
	tracker.Now = s.Clock.Now
	codes := otp.New(s.OTPs, otp.Config{TTL: 5 * time.Minute})
	codes.Now = s.Clock.Now

	s.Flow = authflow.New(authflow.Deps{
		Users:   s.Users,
		Lockout: tracker,
		OTP:     codes,
		Hasher:  authutil.NewHasher(bcrypt.MinCost),
		Mailer:  s.Mail,
		Audit:   s.Audit,
	})

	maxAge := 12 * time.Hour
	store, err := auth.NewStore(auth.StoreConfig{Key: SessionKey, MaxAge: maxAge}, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	s.SessionStore = &fakes.SessionStore{Inner: store}
	s.Sessions = auth.NewSessionManager(s.SessionStore, "test-session", maxAge, zap.NewNop())
	s.Sessions.Now = s.Clock.Now
	return s
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

// LastCode returns the code from the most recent email.
func (s *Stack) LastCode(t *testing.T) string {
	t.Helper()
	msg, ok := s.Mail.Last()
	if !ok {
		t.Fatal("no email was sent")
	}
	code := codePattern.FindString(msg.TextBody)
	if code == "" {
		t.Fatalf("no code in email body %q", msg.TextBody)
	}
	return code
}

// Register creates an account through the flow.
func (s *Stack) Register(t *testing.T, email, password string) int64 {
	t.Helper()
	id, err := s.Flow.Register(t.Context(), auditlog.Source{IP: "192.0.2.1"}, email, password, password)
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return id
}

// Browser carries cookies between requests.
type Browser struct {
	cookies    map[string]*http.Cookie
	RemoteAddr string
}

func NewBrowser() *Browser {
	return &Browser{cookies: make(map[string]*http.Cookie), RemoteAddr: "192.0.2.1:5555"}
}

func (b *Browser) request(method, target string, body url.Values) *http.Request {
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, strings.NewReader(body.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r.RemoteAddr = b.RemoteAddr
	r.Header.Set("Accept", "text/html")
	for _, c := range b.cookies {
		r.AddCookie(c)
	}
	return r
}

func (b *Browser) keep(rec *httptest.ResponseRecorder) {
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
}

// Do serves a prepared request and keeps any cookies set.
func (b *Browser) Do(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	b.keep(rec)
	return rec
}

// Get issues a GET.
func (b *Browser) Get(h http.Handler, target string) *httptest.ResponseRecorder {
	return b.Do(h, b.request(http.MethodGet, target, nil))
}

// Post issues a form POST.
func (b *Browser) Post(h http.Handler, target string, form url.Values) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	return b.Do(h, b.request(http.MethodPost, target, form))
}

// Request builds a request carrying the browser's cookies without sending it.
func (b *Browser) Request(method, target string) *http.Request {
	return b.request(method, target, nil)
}

// State reads the browser's session state through sm.
func (b *Browser) State(sm *auth.SessionManager) auth.State {
	return sm.State(b.request(http.MethodGet, "/", nil))
}
