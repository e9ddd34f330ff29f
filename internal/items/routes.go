package items

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers item, hierarchy and rule administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("authz.item.view", "authz.item.manage"))
		r.Get("/items", h.listItems)
		r.Get("/items/{name}", h.showItem)
		r.Get("/items/{name}/children", h.listChildren)
		r.Get("/items/{name}/descendants", h.listDescendants)
		r.Get("/items/{name}/ancestors", h.listAncestors)
		r.Get("/rules", h.listRules)
		r.Get("/rules/{name}", h.showRule)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll("authz.item.manage"))
		r.Post("/items", h.createItem)
		r.Patch("/items/{name}", h.updateItem)
		r.Delete("/items/{name}", h.deleteItem)
		r.Put("/items/{name}/children/{child}", h.addChild)
		r.Delete("/items/{name}/children/{child}", h.removeChild)
		r.Post("/rules", h.createRule)
		r.Delete("/rules/{name}", h.deleteRule)
	})
}
