// internal/app/system/viewdata/viewdata.go
package viewdata

// Terminology: User Identifiers
//   - UserID / userID / user_id: the numeric id (_id) of a users record
//   - Username: the email shown in the header once both factors are done

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/dalemusser/securenotes/internal/app/resources"
	"github.com/dalemusser/securenotes/internal/app/system/auth"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

// DefaultSiteName is shown in the title bar.
const DefaultSiteName = "SecureNotes"

// BaseVM contains common fields for all view models.
// Embed this struct in your feature-specific view models.
//
// Usage:
//
//	type myPageData struct {
//	    viewdata.BaseVM
//	    // page-specific fields...
//	}
//
//	data := myPageData{BaseVM: viewdata.New(r, "Page Title")}
type BaseVM struct {
	SiteName string

	// User context (from auth.LoadSession)
	IsLoggedIn bool
	UserID     int64
	Username   string

	// Page context
	Title       string
	CurrentPath string

	// Security
	CSRFField template.HTML // hidden input carrying the gorilla/csrf token
}

// New creates a BaseVM for the request.
func New(r *http.Request, title string) BaseVM {
	st := auth.CurrentState(r)
	vm := BaseVM{
		SiteName:    DefaultSiteName,
		Title:       title,
		CurrentPath: r.URL.Path,
		CSRFField:   csrf.TemplateField(r),
	}
	if st.IsAuthenticated() {
		vm.IsLoggedIn = true
		vm.UserID = st.UserID
		vm.Username = st.Username
	}
	return vm
}

// logger is used for render failures; bootstrap installs the app logger.
var logger = zap.NewNop()

// UseLogger sets the logger for render failures.
func UseLogger(l *zap.Logger) {
	if l != nil {
		logger = l
	}
}

// Render executes the named page through the template engine into a buffer
// and writes it with status. A template failure produces a bare 500 so a
// half-written page never reaches the client.
func Render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	eng, err := resources.Engine()
	if err != nil {
		logger.Error("template engine unavailable", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := eng.Render(&buf, r, page, data); err != nil {
		logger.Error("template render failed",
			zap.String("page", page),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
