// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	activityfeature "github.com/dalemusser/securenotes/internal/app/features/activity"
	dashboardfeature "github.com/dalemusser/securenotes/internal/app/features/dashboard"
	errorsfeature "github.com/dalemusser/securenotes/internal/app/features/errors"
	healthfeature "github.com/dalemusser/securenotes/internal/app/features/health"
	homefeature "github.com/dalemusser/securenotes/internal/app/features/home"
	loginfeature "github.com/dalemusser/securenotes/internal/app/features/login"
	logoutfeature "github.com/dalemusser/securenotes/internal/app/features/logout"
	registerfeature "github.com/dalemusser/securenotes/internal/app/features/register"
	appresources "github.com/dalemusser/securenotes/internal/app/resources"
	activitystore "github.com/dalemusser/securenotes/internal/app/store/activity"
	lockoutstore "github.com/dalemusser/securenotes/internal/app/store/lockout"
	"github.com/dalemusser/securenotes/internal/app/store/loginotp"
	userstore "github.com/dalemusser/securenotes/internal/app/store/users"
	"github.com/dalemusser/securenotes/internal/app/system/auditlog"
	"github.com/dalemusser/securenotes/internal/app/system/auth"
	"github.com/dalemusser/securenotes/internal/app/system/authflow"
	"github.com/dalemusser/securenotes/internal/app/system/authutil"
	"github.com/dalemusser/securenotes/internal/app/system/lockout"
	"github.com/dalemusser/securenotes/internal/app/system/network"
	"github.com/dalemusser/securenotes/internal/app/system/otp"
	"github.com/dalemusser/securenotes/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

// requestTimeout bounds every request end to end.
const requestTimeout = 30 * time.Second

// devOrigins are trusted for CSRF origin checks outside production.
var devOrigins = []string{
	"localhost:8080",
	"localhost:3000",
	"127.0.0.1:8080",
	"127.0.0.1:3000",
}

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed. It builds the session store, the
// authentication flow over the MongoDB stores, and the router, then wraps
// the router in WAFFLE's CORS and security header middleware.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"

	store, err := auth.NewStore(auth.StoreConfig{
		Backend: appCfg.SessionBackend,
		Key:     appCfg.SessionKey,
		Domain:  appCfg.SessionDomain,
		Dir:     appCfg.SessionDir,
		MaxAge:  appCfg.SessionMaxAge,
		Secure:  secure,
	}, deps.MongoDatabase, logger)
	if err != nil {
		logger.Error("session store init failed", zap.Error(err))
		return nil, err
	}
	sessionMgr := auth.NewSessionManager(store, appCfg.SessionName, appCfg.SessionMaxAge, logger)

	proxies, err := network.ParseTrustedProxies(appCfg.TrustedProxies)
	if err != nil {
		logger.Error("invalid trusted_proxies", zap.Error(err))
		return nil, err
	}

	flow := authflow.New(authflow.Deps{
		Users:   userstore.New(deps.MongoDatabase),
		Lockout: lockout.New(lockoutstore.New(deps.MongoDatabase), lockout.Config{MaxFails: appCfg.MaxFails, LockFor: appCfg.LockFor}),
		OTP:     otp.New(loginotp.New(deps.MongoDatabase), otp.Config{TTL: appCfg.OTPExpiry}),
		Hasher:  authutil.NewHasher(appCfg.BcryptCost),
		Mailer:  deps.Mailer,
		Audit:   deps.Audit,
		Logger:  logger,
	})

	origins := []string{}
	if !secure {
		origins = append(origins, devOrigins...)
	}
	if host := baseHost(appCfg.BaseURL); host != "" {
		origins = append(origins, host)
	}

	r := newRouter(routerDeps{
		Sessions:       sessionMgr,
		Flow:           flow,
		Audit:          deps.Audit,
		History:        activitystore.New(deps.MongoDatabase),
		Pinger:         deps.MongoClient,
		Proxies:        proxies,
		Limiter:        loginLimiter,
		IdleTimeout:    appCfg.IdleTimeout,
		CSRFKey:        appCfg.CSRFKey,
		CookieDomain:   appCfg.SessionDomain,
		Secure:         secure,
		TrustedOrigins: origins,
		Logger:         logger,
	})

	// CORS must see preflight requests before anything else.
	var h http.Handler = r
	h = middleware.SecurityHeadersFromConfig(coreCfg)(h)
	h = middleware.CORSFromConfig(coreCfg)(h)

	logger.Info("router ready",
		zap.Bool("secure", secure),
		zap.Int("trusted_proxies", proxies.Len()),
		zap.Duration("idle_timeout", appCfg.IdleTimeout),
		zap.Duration("session_max_age", appCfg.SessionMaxAge))
	return h, nil
}

// routerDeps is everything newRouter mounts. Tests fill it with fakes.
type routerDeps struct {
	Sessions *auth.SessionManager
	Flow     *authflow.Service
	Audit    auditlog.Recorder
	History  activityfeature.History
	Pinger   healthfeature.Pinger
	Proxies  *network.TrustedProxies
	Limiter  *ratelimit.Limiter // nil disables login throttling

	IdleTimeout    time.Duration
	CSRFKey        string
	CookieDomain   string
	Secure         bool
	TrustedOrigins []string

	Logger *zap.Logger
}

// newRouter builds the chi router: global middleware, then the feature routes.
func newRouter(d routerDeps) chi.Router {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	errLog := errorsfeature.NewErrorLogger(logger)
	errPages := errorsfeature.NewHandler()

	r := chi.NewRouter()

	// ─────────────────────────────────────────────────────────────────────────────
	// Global Middleware (applies to ALL routes)
	// ─────────────────────────────────────────────────────────────────────────────

	r.Use(chimw.RequestID)
	r.Use(chimw.Timeout(requestTimeout))

	// Session state first so idle enforcement and handlers see it.
	r.Use(d.Sessions.LoadSession)
	r.Use(d.Sessions.IdleTimeout(auth.IdleConfig{Idle: d.IdleTimeout}, expiryRecorder(d.Audit, d.Proxies)))

	r.Use(csrfMiddleware(d, errPages, logger))

	// ─────────────────────────────────────────────────────────────────────────────
	// Routes
	// ─────────────────────────────────────────────────────────────────────────────

	r.Mount("/health", healthfeature.Routes(healthfeature.NewHandler(d.Pinger, logger)))
	r.Handle("/static/*", appresources.AssetsHandler("/static"))

	r.Handle("/", homefeature.Routes(homefeature.NewHandler(logger)))

	loginHandler := loginfeature.NewHandler(d.Flow, d.Sessions, d.Audit, d.Proxies, d.Limiter, errLog, logger)
	r.Mount("/login", loginfeature.Routes(loginHandler))
	r.Mount("/verify", loginfeature.VerifyRoutes(loginHandler))

	r.Mount("/register", registerfeature.Routes(registerfeature.NewHandler(d.Flow, d.Proxies, errLog, logger)))
	r.Mount("/logout", logoutfeature.Routes(logoutfeature.NewHandler(d.Flow, d.Sessions, d.Proxies, logger)))
	r.Mount("/dashboard", dashboardfeature.Routes(dashboardfeature.NewHandler(logger)))
	r.Mount("/activity", activityfeature.Routes(activityfeature.NewHandler(d.History, errLog, logger)))

	r.NotFound(errPages.NotFound)

	return r
}

// expiryRecorder audits sessions ended by IdleTimeout.
func expiryRecorder(audit auditlog.Recorder, proxies *network.TrustedProxies) auth.ExpireFunc {
	return func(r *http.Request, st auth.State, reason auth.ExpireReason) {
		if audit == nil {
			return
		}
		evType := auditlog.EventSessionIdleTimeout
		if reason == auth.ExpiredLifetime {
			evType = auditlog.EventSessionExpired
		}
		audit.Record(auditlog.SourceFromRequest(r, proxies), auditlog.Event{
			Type:     evType,
			UserID:   st.UserID,
			Username: st.Username,
			Details:  reason.String(),
		})
	}
}

// csrfMiddleware protects every state-changing request.
// Cookie name is "securenotes_csrf" to avoid collisions with other services
// on the same domain.
func csrfMiddleware(d routerDeps, pages *errorsfeature.Handler, logger *zap.Logger) func(http.Handler) http.Handler {
	opts := []csrf.Option{
		csrf.Secure(d.Secure),
		csrf.Path("/"),
		csrf.CookieName("securenotes_csrf"),
		csrf.FieldName("csrf_token"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			logger.Warn("CSRF validation failed",
				zap.String("path", req.URL.Path),
				zap.String("method", req.Method),
				zap.String("reason", csrf.FailureReason(req).Error()),
			)
			pages.Forbidden(w, req)
		})),
	}
	if len(d.TrustedOrigins) > 0 {
		opts = append(opts, csrf.TrustedOrigins(d.TrustedOrigins))
	}
	if d.CookieDomain != "" {
		opts = append(opts, csrf.Domain(d.CookieDomain))
	}
	protect := csrf.Protect([]byte(d.CSRFKey), opts...)

	return func(next http.Handler) http.Handler {
		h := protect(next)
		if d.Secure {
			return h
		}
		// Plain HTTP in development: origin checks must not assume https.
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			h.ServeHTTP(w, csrf.PlaintextHTTPRequest(req))
		})
	}
}
