package dashboard

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/securenotes/internal/app/system/auth"
	"github.com/dalemusser/securenotes/internal/testutil/webtest"
)

func serve(req *http.Request) *webtest.ResponseRecorder {
	rec := webtest.NewRecorder()
	Routes(NewHandler(nil)).ServeHTTP(rec, req)
	return rec
}

func TestDashboard_Unauthenticated(t *testing.T) {
	alice := webtest.Alice()
	for _, st := range []auth.State{{Kind: auth.Anonymous}, alice.Pending()} {
		rec := serve(webtest.NewRequestWithState(http.MethodGet, "/", st))

		rec.AssertStatus(t, http.StatusSeeOther)
		if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "/login?return=") {
			t.Errorf("%s: Location = %q, want /login with return target", st.Kind, loc)
		}
	}
}

func TestDashboard_Authenticated(t *testing.T) {
	at := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	rec := serve(webtest.NewRequestWithState(http.MethodGet, "/", webtest.Alice().Authenticated(at)))

	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "Welcome, alice@example.com")
	rec.AssertContains(t, "2026-03-04 10:30 UTC")
	rec.AssertContains(t, `href="/activity/"`)
}
