// internal/app/features/logout/logout.go
package logout

import (
	"net/http"

	"github.com/dalemusser/securenotes/internal/app/system/auditlog"
	"github.com/dalemusser/securenotes/internal/app/system/auth"
	"github.com/dalemusser/securenotes/internal/app/system/authflow"
	"github.com/dalemusser/securenotes/internal/app/system/network"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler ends sessions in any state.
type Handler struct {
	flow     *authflow.Service
	sessions *auth.SessionManager
	proxies  *network.TrustedProxies
	logger   *zap.Logger
}

func NewHandler(flow *authflow.Service, sessions *auth.SessionManager, proxies *network.TrustedProxies, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{flow: flow, sessions: sessions, proxies: proxies, logger: logger}
}

// Routes accepts GET so the header link works without a form.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.serve)
	r.Post("/", h.serve)
	return r
}

// actor attributes the logout to whoever the session names. A pending
// session has no username yet, so its email stands in.
func actor(r *http.Request, st auth.State, proxies *network.TrustedProxies) auditlog.Source {
	src := auditlog.SourceFromRequest(r, proxies)
	if !st.HasIdentity() {
		return src
	}
	src.UserID = st.UserID
	switch {
	case st.Username != "":
		src.Username = st.Username
	default:
		src.Username = st.Email
	}
	return src
}

// GET|POST /logout
func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	h.flow.Logout(r.Context(), actor(r, h.sessions.State(r), h.proxies))

	if err := h.sessions.Clear(w, r); err != nil {
		h.logger.Warn("session clear failed", zap.Error(err))
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
