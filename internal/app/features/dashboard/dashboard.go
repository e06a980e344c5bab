// internal/app/features/dashboard/dashboard.go
package dashboard

import (
	"net/http"
	"time"

	"github.com/dalemusser/securenotes/internal/app/system/auth"
	"github.com/dalemusser/securenotes/internal/app/system/viewdata"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler provides dashboard handlers.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates a new dashboard Handler.
func NewHandler(logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logger: logger}
}

// DashboardVM is the view model for the dashboard.
type DashboardVM struct {
	viewdata.BaseVM
	SignedInAt time.Time
}

// Routes returns a chi.Router with dashboard routes mounted. Only sessions
// that completed both factors get through.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(auth.RequireAuthenticated)
	r.Get("/", h.showDashboard)
	return r
}

// showDashboard is the landing page after a successful second factor.
func (h *Handler) showDashboard(w http.ResponseWriter, r *http.Request) {
	st := auth.CurrentState(r)
	if !st.IsAuthenticated() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	vm := DashboardVM{
		BaseVM:     viewdata.New(r, "Dashboard"),
		SignedInAt: st.AuthenticatedAt.UTC(),
	}
	viewdata.Render(w, r, http.StatusOK, "dashboard", vm)
}
