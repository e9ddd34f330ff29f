package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/aegis-rbac/aegis/internal/shared"
)

// Middleware authenticates requests via the Authorization bearer header and
// places the resulting principal in the request context. Requests without a
// valid credential are rejected before any handler runs.
func Middleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			credential, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			principal, err := service.Authenticate(r.Context(), credential)
			if err != nil {
				if logger != nil && err != ErrInvalidToken {
					logger.Error("authenticate token", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			ctx := shared.ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
