package auth

// Terminology: User Identifiers
//   - UserID / userID / user_id: the numeric id (_id) of a users record
//   - Email: the address a user signs in with; Username is the display identity
//     stored once the second factor succeeds (the email, for this app)

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	sessionstore "github.com/dalemusser/securenotes/internal/app/store/sessions"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Session error classification for logging and monitoring.
type sessionErrorType int

const (
	sessionErrUnknown   sessionErrorType = iota
	sessionErrExpired                    // timestamp expired - normal
	sessionErrTampered                   // MAC invalid - potential attack
	sessionErrCorrupted                  // decode/decrypt failed - corruption or key rotation
	sessionErrBackend                    // store/backend failure
)

/*─────────────────────────────────────────────────────────────────────────────*
| Session constants                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

const (
	pendingUserIDKey = "pending_otp_user_id"
	pendingEmailKey  = "pending_otp_email"
	userIDKey        = "user_id"
	usernameKey      = "username"
	lastActivityKey  = "last_activity"
	authAtKey        = "auth_at"
)

// Session backends selectable through configuration.
const (
	BackendCookie     = "cookie"
	BackendMongo      = "mongo"
	BackendFilesystem = "filesystem"
)

// DefaultSessionName is used when no cookie name is configured.
const DefaultSessionName = "securenotes-session"

// ErrNotPending is returned by SetAuthenticated when the session does not hold
// a pending second-factor identity for the given user.
var ErrNotPending = errors.New("auth: session has no pending second factor for this user")

/*─────────────────────────────────────────────────────────────────────────────*
| Session state                                                               |
*─────────────────────────────────────────────────────────────────────────────*/

// Kind is the protocol position of a session.
type Kind int

const (
	Anonymous Kind = iota
	PendingTwoFactor
	Authenticated
)

func (k Kind) String() string {
	switch k {
	case PendingTwoFactor:
		return "pending_two_factor"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// State is the typed view of one browser session. Pending and authenticated
// identities are never both present: mutations clear one before setting the
// other, and State resolves a session carrying both as Authenticated.
type State struct {
	Kind            Kind
	UserID          int64
	Email           string // pending only
	Username        string // authenticated only
	LastActivity    time.Time
	AuthenticatedAt time.Time
}

// IsAuthenticated reports whether the session completed both factors.
func (s State) IsAuthenticated() bool { return s.Kind == Authenticated }

// HasIdentity reports whether the session names a user in either state.
func (s State) HasIdentity() bool { return s.Kind != Anonymous && s.UserID != 0 }

/*─────────────────────────────────────────────────────────────────────────────*
| Store construction                                                          |
*─────────────────────────────────────────────────────────────────────────────*/

// StoreConfig selects and configures the session backend.
type StoreConfig struct {
	Backend string // cookie, mongo, filesystem
	Key     string
	Domain  string
	Dir     string // filesystem backend only
	MaxAge  time.Duration
	Secure  bool
}

// SessionConfigError is returned when session configuration is invalid.
type SessionConfigError struct {
	Message string
}

func (e *SessionConfigError) Error() string {
	return e.Message
}

// NewStore builds the configured session store. db is required only for the
// mongo backend.
//
// Returns an error if the key is empty, too weak for production mode, or the
// backend is unknown.
func NewStore(cfg StoreConfig, db *mongo.Database, logger *zap.Logger) (sessions.Store, error) {
	keys, err := keyPairs(cfg.Key, cfg.Secure, logger)
	if err != nil {
		return nil, err
	}
	opts := Options(cfg.Domain, cfg.MaxAge, cfg.Secure)

	var store sessions.Store
	switch cfg.Backend {
	case "", BackendCookie:
		cs := sessions.NewCookieStore(keys...)
		cs.Options = &opts
		cs.MaxAge(opts.MaxAge)
		store = cs
	case BackendFilesystem:
		fs := sessions.NewFilesystemStore(cfg.Dir, keys...)
		fs.Options = &opts
		fs.MaxAge(opts.MaxAge)
		store = fs
	case BackendMongo:
		if db == nil {
			return nil, &SessionConfigError{Message: "mongo session backend requires a database"}
		}
		store = sessionstore.NewMongoStore(db, opts, keys...)
	default:
		return nil, &SessionConfigError{Message: "unknown session backend " + cfg.Backend + "; use cookie, mongo, or filesystem"}
	}

	logger.Info("session store initialized",
		zap.String("backend", backendName(cfg.Backend)),
		zap.Bool("secure", cfg.Secure),
		zap.String("domain", cfg.Domain))

	return store, nil
}

func backendName(b string) string {
	if b == "" {
		return BackendCookie
	}
	return b
}

// Options returns the cookie options every backend shares.
func Options(domain string, maxAge time.Duration, secure bool) sessions.Options {
	// SameSite=Lax allows top-level navigations from other sites (links in
	// emails) while blocking cross-site POSTs.
	return sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// keyPairs validates the session key and derives the signing and encryption
// keys from it.
func keyPairs(sessionKey string, secure bool, logger *zap.Logger) ([][]byte, error) {
	if sessionKey == "" {
		return nil, &SessionConfigError{Message: "session key is empty; provide ≥32 random chars"}
	}

	isWeak := len(sessionKey) < 32 || isDefaultKey(sessionKey)

	if secure {
		if isWeak {
			return nil, &SessionConfigError{
				Message: "session key is too weak for production; provide ≥32 random chars (not the default dev key)",
			}
		}
	} else if isWeak {
		logger.Warn("session key is weak; 32+ random chars required in production",
			zap.Int("length", len(sessionKey)),
			zap.Bool("is_default", isDefaultKey(sessionKey)))
	}

	return [][]byte{
		deriveKey(sessionKey, "securenotes session signing"),
		deriveKey(sessionKey, "securenotes session encryption"),
	}, nil
}

func deriveKey(secret, label string) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(label))
	return m.Sum(nil)
}

// isDefaultKey checks if the session key appears to be a default/placeholder value.
func isDefaultKey(key string) bool {
	lower := strings.ToLower(key)
	patterns := []string{
		"dev-only",
		"change-me",
		"placeholder",
		"default",
		"example",
		"insecure",
		"test-key",
		"secret123",
		"password",
	}
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

/*─────────────────────────────────────────────────────────────────────────────*
| SessionManager - injectable session management                              |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionManager reads and mutates the session protocol state over any
// gorilla sessions.Store.
type SessionManager struct {
	store  sessions.Store
	logger *zap.Logger
	name   string
	maxAge time.Duration

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// NewSessionManager wraps store. maxAge is the absolute session lifetime,
// applied to the cookie each time the session is persisted and enforced
// server-side by IdleTimeout.
func NewSessionManager(store sessions.Store, name string, maxAge time.Duration, logger *zap.Logger) *SessionManager {
	if name == "" {
		name = DefaultSessionName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		store:  store,
		logger: logger,
		name:   name,
		maxAge: maxAge,
		Now:    time.Now,
	}
}

// SessionName returns the configured session cookie name.
func (sm *SessionManager) SessionName() string {
	return sm.name
}

// MaxAge returns the absolute session lifetime.
func (sm *SessionManager) MaxAge() time.Duration {
	return sm.maxAge
}

// session fetches the request's session. A decode or backend error is logged
// and yields a fresh empty session so the request proceeds as Anonymous.
func (sm *SessionManager) session(r *http.Request) *sessions.Session {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil {
		sm.logSessionError(r, err)
	}
	if sess == nil {
		sess = sessions.NewSession(sm.store, sm.name)
		sess.IsNew = true
	}
	return sess
}

func (sm *SessionManager) logSessionError(r *http.Request, err error) {
	errType, errCategory := classifySessionError(err)
	switch errType {
	case sessionErrExpired:
		sm.logger.Debug("session expired, starting fresh session",
			zap.String("category", errCategory),
			zap.String("path", r.URL.Path))
	case sessionErrTampered:
		sm.logger.Warn("session MAC validation failed (possible tampering)",
			zap.String("category", errCategory),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()))
	case sessionErrCorrupted:
		sm.logger.Info("session decode failed, starting fresh session",
			zap.String("category", errCategory),
			zap.String("path", r.URL.Path))
	case sessionErrBackend:
		sm.logger.Error("session store error, starting fresh session",
			zap.Error(err),
			zap.String("path", r.URL.Path))
	default:
		sm.logger.Warn("session error, starting fresh session",
			zap.Error(err),
			zap.String("category", errCategory),
			zap.String("path", r.URL.Path))
	}
}

// State reads the typed session state for r.
func (sm *SessionManager) State(r *http.Request) State {
	return stateOf(sm.session(r))
}

func stateOf(sess *sessions.Session) State {
	if uid := getInt64(sess, userIDKey); uid != 0 {
		return State{
			Kind:            Authenticated,
			UserID:          uid,
			Username:        getString(sess, usernameKey),
			LastActivity:    getTime(sess, lastActivityKey),
			AuthenticatedAt: getTime(sess, authAtKey),
		}
	}
	if uid := getInt64(sess, pendingUserIDKey); uid != 0 {
		return State{
			Kind:   PendingTwoFactor,
			UserID: uid,
			Email:  getString(sess, pendingEmailKey),
		}
	}
	return State{Kind: Anonymous}
}

// SetPending records a password-verified identity awaiting its second factor.
// Any authenticated identity on the session is dropped first.
func (sm *SessionManager) SetPending(w http.ResponseWriter, r *http.Request, userID int64, email string) error {
	sess := sm.session(r)
	delete(sess.Values, userIDKey)
	delete(sess.Values, usernameKey)
	delete(sess.Values, lastActivityKey)
	delete(sess.Values, authAtKey)

	sess.Values[pendingUserIDKey] = userID
	sess.Values[pendingEmailKey] = email
	sess.Options.MaxAge = int(sm.maxAge.Seconds())
	return sess.Save(r, w)
}

// SetAuthenticated promotes a pending session for userID to authenticated.
// Pending keys are removed before the identity is written and server-side
// backends issue a new session id.
func (sm *SessionManager) SetAuthenticated(w http.ResponseWriter, r *http.Request, userID int64, username string) error {
	sess := sm.session(r)
	st := stateOf(sess)
	if st.Kind != PendingTwoFactor || st.UserID != userID {
		return ErrNotPending
	}

	delete(sess.Values, pendingUserIDKey)
	delete(sess.Values, pendingEmailKey)

	if err := sm.regenerate(r, sess); err != nil {
		return err
	}

	now := sm.Now().Unix()
	sess.Values[userIDKey] = userID
	sess.Values[usernameKey] = username
	sess.Values[lastActivityKey] = now
	sess.Values[authAtKey] = now
	sess.Options.MaxAge = int(sm.maxAge.Seconds())
	return sess.Save(r, w)
}

// Touch refreshes last_activity and re-arms the cookie lifetime.
func (sm *SessionManager) Touch(w http.ResponseWriter, r *http.Request) error {
	sess := sm.session(r)
	sess.Values[lastActivityKey] = sm.Now().Unix()
	sess.Options.MaxAge = int(sm.maxAge.Seconds())
	return sess.Save(r, w)
}

// Clear drops every session value and expires the cookie.
func (sm *SessionManager) Clear(w http.ResponseWriter, r *http.Request) error {
	sess := sm.session(r)
	for k := range sess.Values {
		delete(sess.Values, k)
	}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

type regenerator interface {
	Regenerate(r *http.Request, session *sessions.Session) error
}

func (sm *SessionManager) regenerate(r *http.Request, sess *sessions.Session) error {
	if rg, ok := sm.store.(regenerator); ok {
		return rg.Regenerate(r, sess)
	}
	// Filesystem sessions get a new file; cookie sessions have no id.
	sess.ID = ""
	return nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Request context                                                             |
*─────────────────────────────────────────────────────────────────────────────*/

type ctxKey string

const currentStateKey ctxKey = "sessionState"

// CurrentState returns the session state placed in the context by
// LoadSession, or Anonymous.
func CurrentState(r *http.Request) State {
	if st, ok := r.Context().Value(currentStateKey).(State); ok {
		return st
	}
	return State{Kind: Anonymous}
}

func withState(r *http.Request, st State) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentStateKey, st))
}

// WithTestState injects a session state into the request context for testing.
func WithTestState(r *http.Request, st State) *http.Request {
	return withState(r, st)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Middleware                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

// LoadSession places the request's session state in its context.
func (sm *SessionManager) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, withState(r, sm.State(r)))
	})
}

// ExpireReason says why IdleTimeout ended a session.
type ExpireReason int

const (
	ExpiredIdle ExpireReason = iota + 1
	ExpiredLifetime
)

func (e ExpireReason) String() string {
	if e == ExpiredLifetime {
		return "max_lifetime"
	}
	return "idle"
}

// ExpireFunc is called with the state of a session IdleTimeout is about to
// clear, before it is cleared.
type ExpireFunc func(r *http.Request, st State, reason ExpireReason)

// IdleConfig configures IdleTimeout.
type IdleConfig struct {
	Idle        time.Duration
	PublicPaths []string
}

// DefaultPublicPaths are exempt from idle enforcement. "/" matches only the
// root; the others match themselves and anything below them.
var DefaultPublicPaths = []string{"/login", "/register", "/verify", "/logout", "/health", "/static", "/"}

// IdleTimeout ends authenticated sessions that have been idle longer than
// cfg.Idle or alive longer than the absolute lifetime, then redirects to
// /login. Live sessions get last_activity refreshed. Public paths pass
// through untouched.
func (sm *SessionManager) IdleTimeout(cfg IdleConfig, onExpire ExpireFunc) func(http.Handler) http.Handler {
	public := cfg.PublicPaths
	if public == nil {
		public = DefaultPublicPaths
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublicPath(r.URL.Path, public) {
				next.ServeHTTP(w, r)
				return
			}

			st := sm.State(r)
			if st.Kind != Authenticated {
				next.ServeHTTP(w, r)
				return
			}

			now := sm.Now()
			var reason ExpireReason
			switch {
			case now.Sub(st.LastActivity) > cfg.Idle:
				reason = ExpiredIdle
			case sm.maxAge > 0 && now.Sub(st.AuthenticatedAt) > sm.maxAge:
				reason = ExpiredLifetime
			}

			if reason != 0 {
				if onExpire != nil {
					onExpire(r, st, reason)
				}
				if err := sm.Clear(w, r); err != nil {
					sm.logger.Warn("failed to clear expired session", zap.Error(err), zap.Int64("user_id", st.UserID))
				}
				sm.logger.Info("session ended",
					zap.String("reason", reason.String()),
					zap.Int64("user_id", st.UserID),
					zap.String("path", r.URL.Path))
				redirectToLogin(w, r, false)
				return
			}

			if err := sm.Touch(w, r); err != nil {
				sm.logger.Warn("failed to refresh session activity", zap.Error(err), zap.Int64("user_id", st.UserID))
			} else {
				st.LastActivity = time.Unix(now.Unix(), 0)
			}
			next.ServeHTTP(w, withState(r, st))
		})
	}
}

// IsPublicPath reports whether path is covered by the allow-list.
func IsPublicPath(path string, public []string) bool {
	for _, p := range public {
		if p == "/" {
			if path == "/" {
				return true
			}
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// RequireAuthenticated returns middleware that ensures the session completed
// both factors.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentState(r).IsAuthenticated() {
			next.ServeHTTP(w, r)
			return
		}
		redirectToLogin(w, r, true)
	})
}

// redirectToLogin sends browsers to /login (optionally carrying the current
// URI as return target) and gives other callers a plain 401.
func redirectToLogin(w http.ResponseWriter, r *http.Request, withReturn bool) {
	target := "/login"
	if withReturn {
		target += "?return=" + url.QueryEscape(currentURI(r))
	}

	// HTMX: full-page client redirect (no partial swap)
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if wantsHTML(r) || r.Method == http.MethodGet {
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Helpers                                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

// getString safely extracts a string from a session value.
func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}

func getInt64(s *sessions.Session, key string) int64 {
	switch v := s.Values[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func getTime(s *sessions.Session, key string) time.Time {
	if v := getInt64(s, key); v != 0 {
		return time.Unix(v, 0)
	}
	return time.Time{}
}

func wantsHTML(r *http.Request) bool {
	if r.Header.Get("HX-Request") == "true" {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html")
}

func currentURI(r *http.Request) string {
	u := *r.URL
	return u.RequestURI()
}

// classifySessionError categorizes a session/cookie error for appropriate logging.
func classifySessionError(err error) (sessionErrorType, string) {
	if err == nil {
		return sessionErrUnknown, "none"
	}

	errStr := strings.ToLower(err.Error())

	var scErr securecookie.Error
	if errors.As(err, &scErr) {
		if !scErr.IsDecode() {
			return sessionErrBackend, "backend"
		}

		switch {
		case strings.Contains(errStr, "expired timestamp"):
			return sessionErrExpired, "expired"
		case strings.Contains(errStr, "mac") || strings.Contains(errStr, "hash"):
			return sessionErrTampered, "mac_invalid"
		case strings.Contains(errStr, "decrypt"):
			return sessionErrCorrupted, "decrypt_failed"
		case strings.Contains(errStr, "base64") || strings.Contains(errStr, "decode"):
			return sessionErrCorrupted, "decode_failed"
		default:
			return sessionErrCorrupted, "decode_other"
		}
	}

	return sessionErrBackend, "unknown"
}
