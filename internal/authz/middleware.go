package authz

import (
	"log/slog"
	"net/http"

	"github.com/aegis-rbac/aegis/internal/shared"
)

// Middleware wires authorization helpers for HTTP handlers. The admin API
// guards itself with the engine it administers.
type Middleware struct {
	Manager *Manager
	Logger  *slog.Logger
}

// RequireAny ensures the current principal holds at least one of the named
// permissions. The bootstrap principal passes unconditionally.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			p := shared.PrincipalFromContext(r.Context())
			if p == nil {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			if p.Super {
				next.ServeHTTP(w, r)
				return
			}
			for _, perm := range perms {
				allowed, err := m.Manager.CheckAccess(r.Context(), p.UserID, perm, nil)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("authz require any", slog.Any("error", err))
					}
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				if allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// RequireAll ensures the current principal holds every named permission.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			p := shared.PrincipalFromContext(r.Context())
			if p == nil {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			if p.Super {
				next.ServeHTTP(w, r)
				return
			}
			for _, perm := range perms {
				allowed, err := m.Manager.CheckAccess(r.Context(), p.UserID, perm, nil)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("authz require all", slog.Any("error", err))
					}
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				if !allowed {
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
