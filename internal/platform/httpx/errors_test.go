package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aegis-rbac/aegis/internal/authz"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"item not found", authz.ErrItemNotFound, http.StatusNotFound},
		{"duplicate name", authz.ErrDuplicateName, http.StatusConflict},
		{"cycle", authz.ErrCycle, http.StatusConflict},
		{"rule in use", authz.ErrRuleInUse, http.StatusConflict},
		{"unknown rule", authz.ErrUnknownRule, http.StatusUnprocessableEntity},
		{"store unavailable", authz.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"wrapped store unavailable", fmt.Errorf("%w: context deadline exceeded", authz.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tc.err)
			require.Equal(t, tc.want, rec.Code)
			require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}
