// internal/app/features/login/login.go
package login

// Terminology: User Identifiers
//   - UserID / userID / user_id: the numeric id (_id) of a users record
//   - Email: what users type to log in; also the session's display username

import (
	"errors"
	"net/http"
	"net/url"

	errorsfeature "github.com/dalemusser/securenotes/internal/app/features/errors"
	"github.com/dalemusser/securenotes/internal/app/system/apperr"
	"github.com/dalemusser/securenotes/internal/app/system/auditlog"
	"github.com/dalemusser/securenotes/internal/app/system/auth"
	"github.com/dalemusser/securenotes/internal/app/system/authflow"
	"github.com/dalemusser/securenotes/internal/app/system/network"
	"github.com/dalemusser/securenotes/internal/app/system/normalize"
	"github.com/dalemusser/securenotes/internal/app/system/ratelimit"
	"github.com/dalemusser/securenotes/internal/app/system/timeouts"
	"github.com/dalemusser/securenotes/internal/app/system/viewdata"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	msgUnavailable = "Service temporarily unavailable. Please try again."
	msgSignInAgain = "We could not finish signing you in. Please log in again."
)

// Handler provides the password step (/login) and the code step (/verify).
type Handler struct {
	flow       *authflow.Service
	sessionMgr *auth.SessionManager
	audit      auditlog.Recorder
	proxies    *network.TrustedProxies
	limiter    *ratelimit.Limiter // nil if rate limiting disabled
	errLog     *errorsfeature.ErrorLogger
	errPages   *errorsfeature.Handler
	logger     *zap.Logger
}

// NewHandler creates a new login Handler.
// limiter can be nil to disable per-client throttling of the POST routes.
func NewHandler(
	flow *authflow.Service,
	sessionMgr *auth.SessionManager,
	audit auditlog.Recorder,
	proxies *network.TrustedProxies,
	limiter *ratelimit.Limiter,
	errLog *errorsfeature.ErrorLogger,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if errLog == nil {
		errLog = errorsfeature.NewErrorLogger(logger)
	}
	return &Handler{
		flow:       flow,
		sessionMgr: sessionMgr,
		audit:      audit,
		proxies:    proxies,
		limiter:    limiter,
		errLog:     errLog,
		errPages:   errorsfeature.NewHandler(),
		logger:     logger,
	}
}

// LoginVM is the view model for the login page.
type LoginVM struct {
	viewdata.BaseVM
	Error     string
	Email     string
	ReturnURL string
}

// VerifyVM is the view model for the code entry page.
type VerifyVM struct {
	viewdata.BaseVM
	Error     string
	Email     string
	ReturnURL string
}

// Routes returns a chi.Router with the password step mounted.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.showLogin)
	r.With(h.throttle).Post("/", h.handleLogin)
	return r
}

// VerifyRoutes returns a chi.Router with the code step mounted.
func VerifyRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.showVerify)
	r.With(h.throttle).Post("/", h.handleVerify)
	return r
}

// throttle applies the per-client limiter, keyed by the client address
// resolved through the trusted proxy list.
func (h *Handler) throttle(next http.Handler) http.Handler {
	if h.limiter == nil {
		return next
	}
	key := func(r *http.Request) string { return network.ClientIP(r, h.proxies) }
	return h.limiter.Middleware(key, http.HandlerFunc(h.rateLimited))(next)
}

func (h *Handler) rateLimited(w http.ResponseWriter, r *http.Request) {
	h.record(r, auditlog.Event{Type: auditlog.EventLoginRateLimited, Details: r.URL.Path})
	h.errPages.TooManyRequests(w, r)
}

func (h *Handler) record(r *http.Request, ev auditlog.Event) {
	if h.audit != nil {
		h.audit.Record(auditlog.SourceFromRequest(r, h.proxies), ev)
	}
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, vm LoginVM) {
	vm.BaseVM = viewdata.New(r, "Log in")
	viewdata.Render(w, r, status, "login", vm)
}

func (h *Handler) renderVerify(w http.ResponseWriter, r *http.Request, status int, vm VerifyVM) {
	vm.BaseVM = viewdata.New(r, "Check your email")
	viewdata.Render(w, r, status, "verify", vm)
}

// showLogin displays the login form.
// GET /login
func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	h.renderLogin(w, r, http.StatusOK, LoginVM{ReturnURL: query.Get(r, "return")})
}

// handleLogin checks the password and, on success, parks the session in the
// pending state and sends the browser to the code step.
// POST /login
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.errLog.Log(r, "failed to parse form", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	email := r.PostFormValue("email")
	password := r.PostFormValue("password")
	returnURL := r.PostFormValue("return")

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.logger, "login")
	defer cancel()

	challenge, err := h.flow.Login(ctx, auditlog.SourceFromRequest(r, h.proxies), email, password)
	if err != nil {
		h.errLog.LogAppError(r, "login failed", err)
		ae := apperr.As(err)
		h.renderLogin(w, r, ae.Status(), LoginVM{
			Error:     ae.Message,
			Email:     normalize.Email(email),
			ReturnURL: returnURL,
		})
		return
	}

	if err := h.sessionMgr.SetPending(w, r, challenge.UserID, challenge.Email); err != nil {
		h.errLog.Log(r, "failed to save pending session", err)
		h.renderLogin(w, r, http.StatusInternalServerError, LoginVM{Error: msgUnavailable, Email: challenge.Email, ReturnURL: returnURL})
		return
	}

	target := "/verify"
	if returnURL != "" {
		target += "?return=" + url.QueryEscape(returnURL)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// pending returns the session's pending challenge, or false when the
// session is not waiting for a code.
func (h *Handler) pending(r *http.Request) (authflow.Challenge, bool) {
	st := h.sessionMgr.State(r)
	if st.Kind != auth.PendingTwoFactor || st.UserID == 0 {
		return authflow.Challenge{}, false
	}
	return authflow.Challenge{UserID: st.UserID, Email: st.Email}, true
}

// showVerify displays the code entry form.
// GET /verify
func (h *Handler) showVerify(w http.ResponseWriter, r *http.Request) {
	challenge, ok := h.pending(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	h.renderVerify(w, r, http.StatusOK, VerifyVM{Email: challenge.Email, ReturnURL: query.Get(r, "return")})
}

// handleVerify checks the code and completes sign-in.
// POST /verify
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	challenge, ok := h.pending(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.errLog.Log(r, "failed to parse form", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	code := r.PostFormValue("code")
	returnURL := r.PostFormValue("return")

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "verify")
	defer cancel()

	src := auditlog.SourceFromRequest(r, h.proxies)
	if err := h.flow.Verify(ctx, src, challenge, code); err != nil {
		h.errLog.LogAppError(r, "code verification failed", err)
		ae := apperr.As(err)
		h.renderVerify(w, r, ae.Status(), VerifyVM{Error: ae.Message, Email: challenge.Email, ReturnURL: returnURL})
		return
	}

	if err := h.sessionMgr.SetAuthenticated(w, r, challenge.UserID, challenge.Email); err != nil {
		if errors.Is(err, auth.ErrNotPending) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		// The code is spent, so the user has to start over from /login.
		h.errLog.Log(r, "failed to create session", err)
		h.renderVerify(w, r, http.StatusInternalServerError, VerifyVM{Error: msgSignInAgain, Email: challenge.Email, ReturnURL: returnURL})
		return
	}
	h.flow.CompleteLogin(src, challenge)

	h.logger.Info("user logged in", zap.Int64("user_id", challenge.UserID))
	http.Redirect(w, r, urlutil.SafeReturn(returnURL, "", "/dashboard"), http.StatusSeeOther)
}
