package errors

import (
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/securenotes/internal/app/system/apperr"
	"github.com/dalemusser/securenotes/internal/testutil"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestPages(t *testing.T) {
	testutil.MustBootTemplates(t)
	h := NewHandler()

	tests := []struct {
		name string
		fn   http.HandlerFunc
		code int
		want string
	}{
		{"forbidden", h.Forbidden, http.StatusForbidden, "Request Refused"},
		{"not found", h.NotFound, http.StatusNotFound, "does not exist"},
		{"too many", h.TooManyRequests, http.StatusTooManyRequests, "Too many attempts"},
		{"internal", h.InternalError, http.StatusInternalServerError, "Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.fn(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestRender_UnlistedStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler().Render(rec, httptest.NewRequest(http.MethodGet, "/x", nil), http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, rec.Body.String(), "teapot")
}

func TestErrorLogger_Log(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	errLog := NewErrorLogger(zap.New(core))

	var req *http.Request
	chimw.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) { req = r })).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/register", nil))
	require.NotNil(t, req)

	errLog.Log(req, "failed to parse form", stderrors.New("boom"), zap.String("extra", "field"))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "/register", fields["path"])
	assert.Equal(t, "POST", fields["method"])
	assert.Equal(t, "field", fields["extra"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestErrorLogger_LogAppError(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	errLog := NewErrorLogger(zap.New(core))
	req := httptest.NewRequest(http.MethodPost, "/login", nil)

	errLog.LogAppError(req, "login failed", nil)
	errLog.LogAppError(req, "login failed", apperr.Authentication("bad_password", "Invalid email or password"))
	errLog.LogAppError(req, "login failed", apperr.Validation("missing_fields", "Email and password required"))
	require.Equal(t, 0, logs.Len(), "client errors are not logged")

	errLog.LogAppError(req, "login failed", apperr.Delivery(stderrors.New("dial tcp: refused")))
	errLog.LogAppError(req, "login failed", stderrors.New("unclassified"))
	require.Equal(t, 2, logs.Len())

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "delivery", fields["kind"])
	assert.Equal(t, "/login", fields["path"])
	assert.NotContains(t, fields, "request_id")
}
