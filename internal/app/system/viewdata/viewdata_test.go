package viewdata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/securenotes/internal/app/system/auth"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	vm := New(r, "Dashboard")
	assert.False(t, vm.IsLoggedIn)
	assert.Equal(t, DefaultSiteName, vm.SiteName)
	assert.Equal(t, "/dashboard", vm.CurrentPath)

	r = auth.WithTestState(r, auth.State{Kind: auth.PendingTwoFactor, UserID: 3, Email: "a@b.com"})
	assert.False(t, New(r, "x").IsLoggedIn, "pending sessions are not logged in")

	r = auth.WithTestState(r, auth.State{Kind: auth.Authenticated, UserID: 3, Username: "a@b.com"})
	vm = New(r, "x")
	assert.True(t, vm.IsLoggedIn)
	assert.Equal(t, int64(3), vm.UserID)
	assert.Equal(t, "a@b.com", vm.Username)
}

func TestRender(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x", nil)

	rec := httptest.NewRecorder()
	Render(rec, r, http.StatusTeapot, "error", struct {
		BaseVM
		Message string
	}{BaseVM: New(r, "Oops"), Message: "<script>boom</script>"})

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), "&lt;script&gt;boom&lt;/script&gt;")

	rec = httptest.NewRecorder()
	Render(rec, r, http.StatusOK, "no-such-page", New(r, "x"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
