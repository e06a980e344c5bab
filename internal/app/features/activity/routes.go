// internal/app/features/activity/routes.go
package activity

import (
	"github.com/go-chi/chi/v5"
)

// Routes returns the router for the activity history.
// Access is checked in the handler so unauthenticated callers see 404.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeList)
	return r
}
