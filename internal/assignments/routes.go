package assignments

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers assignment administration and access-check routes.
// Check is open to every authenticated principal; mutations require the
// assignment management permission.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/check", h.check)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("authz.assignment.view", "authz.assignment.manage"))
		r.Get("/assignments/{user}", h.list)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll("authz.assignment.manage"))
		r.Post("/assignments", h.assign)
		r.Delete("/assignments/{user}", h.revokeAll)
		r.Delete("/assignments/{user}/{item}", h.revoke)
	})
}
