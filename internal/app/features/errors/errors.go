// Package errors renders the HTML error pages and logs request failures
// that need an operator's attention.
package errors

import (
	"net/http"

	"github.com/dalemusser/securenotes/internal/app/system/apperr"
	"github.com/dalemusser/securenotes/internal/app/system/viewdata"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ErrorLogger logs handler failures with the request they belong to.
type ErrorLogger struct {
	logger *zap.Logger
}

func NewErrorLogger(logger *zap.Logger) *ErrorLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorLogger{logger: logger}
}

// Log writes an error entry tagged with method, path and request id.
func (e *ErrorLogger) Log(r *http.Request, msg string, err error, fields ...zap.Field) {
	base := []zap.Field{
		zap.Error(err),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	}
	if id := chimw.GetReqID(r.Context()); id != "" {
		base = append(base, zap.String("request_id", id))
	}
	e.logger.Error(msg, append(base, fields...)...)
}

// LogAppError logs only the kinds a user cannot fix: infrastructure and
// delivery failures. Bad input, bad credentials and lockouts go to the
// audit trail instead.
func (e *ErrorLogger) LogAppError(r *http.Request, msg string, err error) {
	ae := apperr.As(err)
	if ae == nil {
		return
	}
	if ae.Kind != apperr.KindInfrastructure && ae.Kind != apperr.KindDelivery {
		return
	}
	e.Log(r, msg, err, zap.String("kind", ae.Kind.String()), zap.String("code", ae.Code))
}

// ErrorVM is the view model for the "error" template.
type ErrorVM struct {
	viewdata.BaseVM
	Message string
}

type page struct {
	title   string
	message string
}

var pages = map[int]page{
	http.StatusForbidden: {
		"Request Refused",
		"This form has expired or was not sent from this site. Reload the page and try again.",
	},
	http.StatusNotFound: {
		"Not Found",
		"The page you asked for does not exist.",
	},
	http.StatusTooManyRequests: {
		"Slow Down",
		"Too many attempts. Please wait a minute and try again.",
	},
	http.StatusInternalServerError: {
		"Server Error",
		"Something went wrong on our side.",
	},
}

// Handler serves the error pages.
type Handler struct{}

func NewHandler() *Handler { return &Handler{} }

// Render writes the page for status. Statuses without their own page use
// the standard status text.
func (h *Handler) Render(w http.ResponseWriter, r *http.Request, status int) {
	p, ok := pages[status]
	if !ok {
		p = page{title: http.StatusText(status), message: http.StatusText(status) + "."}
	}
	viewdata.Render(w, r, status, "error", ErrorVM{
		BaseVM:  viewdata.New(r, p.title),
		Message: p.message,
	})
}

// Forbidden is served when a state-changing request fails the CSRF check.
func (h *Handler) Forbidden(w http.ResponseWriter, r *http.Request) {
	h.Render(w, r, http.StatusForbidden)
}

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.Render(w, r, http.StatusNotFound)
}

func (h *Handler) TooManyRequests(w http.ResponseWriter, r *http.Request) {
	h.Render(w, r, http.StatusTooManyRequests)
}

func (h *Handler) InternalError(w http.ResponseWriter, r *http.Request) {
	h.Render(w, r, http.StatusInternalServerError)
}
