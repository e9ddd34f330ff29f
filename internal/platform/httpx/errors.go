package httpx

import (
	"errors"
	"net/http"

	"github.com/aegis-rbac/aegis/internal/authz"
)

// RespondError maps engine errors to HTTP responses using RFC7807. Conflicts
// (duplicates, cycles, in-use references) become 409, missing references 404,
// infrastructure failures 503.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authz.ErrItemNotFound),
		errors.Is(err, authz.ErrRuleNotFound),
		errors.Is(err, authz.ErrEdgeNotFound),
		errors.Is(err, authz.ErrNotAssigned):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, authz.ErrDuplicateName),
		errors.Is(err, authz.ErrDuplicateAssignment),
		errors.Is(err, authz.ErrRuleInUse):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, authz.ErrCycle),
		errors.Is(err, authz.ErrCycleDetected):
		Problem(w, http.StatusConflict, "Cycle", err.Error())
	case errors.Is(err, authz.ErrUnknownRule):
		Problem(w, http.StatusUnprocessableEntity, "Unknown Rule", err.Error())
	case errors.Is(err, authz.ErrStoreUnavailable):
		Problem(w, http.StatusServiceUnavailable, "Store Unavailable", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
