// internal/app/features/register/register.go
package register

import (
	"net/http"

	errorsfeature "github.com/dalemusser/securenotes/internal/app/features/errors"
	"github.com/dalemusser/securenotes/internal/app/system/apperr"
	"github.com/dalemusser/securenotes/internal/app/system/auditlog"
	"github.com/dalemusser/securenotes/internal/app/system/authflow"
	"github.com/dalemusser/securenotes/internal/app/system/network"
	"github.com/dalemusser/securenotes/internal/app/system/normalize"
	"github.com/dalemusser/securenotes/internal/app/system/timeouts"
	"github.com/dalemusser/securenotes/internal/app/system/viewdata"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler provides account registration.
type Handler struct {
	flow    *authflow.Service
	proxies *network.TrustedProxies
	errLog  *errorsfeature.ErrorLogger
	logger  *zap.Logger
}

// NewHandler creates a new register Handler.
func NewHandler(flow *authflow.Service, proxies *network.TrustedProxies, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if errLog == nil {
		errLog = errorsfeature.NewErrorLogger(logger)
	}
	return &Handler{flow: flow, proxies: proxies, errLog: errLog, logger: logger}
}

// RegisterVM is the view model for the registration page.
type RegisterVM struct {
	viewdata.BaseVM
	Error string
	Email string
}

// Routes returns a chi.Router with registration routes mounted.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.show)
	r.Post("/", h.handle)
	return r
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, vm RegisterVM) {
	vm.BaseVM = viewdata.New(r, "Register")
	viewdata.Render(w, r, status, "register", vm)
}

// show displays the registration form.
// GET /register
func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, RegisterVM{})
}

// handle creates the account and sends the browser to /login. Passwords are
// never echoed back into the form.
// POST /register
func (h *Handler) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.errLog.Log(r, "failed to parse form", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	email := r.PostFormValue("email")

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "register")
	defer cancel()

	id, err := h.flow.Register(ctx, auditlog.SourceFromRequest(r, h.proxies),
		email, r.PostFormValue("password"), r.PostFormValue("confirm_password"))
	if err != nil {
		h.errLog.LogAppError(r, "registration failed", err)
		ae := apperr.As(err)
		h.render(w, r, ae.Status(), RegisterVM{Error: ae.Message, Email: normalize.Email(email)})
		return
	}

	h.logger.Info("user registered", zap.Int64("user_id", id))
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
