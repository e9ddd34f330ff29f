package assignments

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/aegis-rbac/aegis/internal/authz"
	"github.com/aegis-rbac/aegis/internal/shared"
)

func newTestServer(t *testing.T, principal *shared.Principal) (*httptest.Server, *authz.Manager) {
	t.Helper()
	store := authz.NewMemStore()
	registry := authz.NewRegistry()
	registry.Register("is_author", authz.OwnerMatch)
	logger := slog.New(slog.DiscardHandler)
	manager := authz.NewManager(store, registry, nil, logger)
	handler := NewHandler(logger, manager, nil, authz.Middleware{Manager: manager, Logger: logger}, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if principal != nil {
				req = req.WithContext(shared.ContextWithPrincipal(req.Context(), principal))
			}
			next.ServeHTTP(w, req)
		})
	})
	handler.MountRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, manager
}

func seedPosts(t *testing.T, m *authz.Manager) {
	t.Helper()
	ctx := context.Background()
	_, err := m.CreateRule(ctx, authz.Rule{Name: "is_author", Data: []byte(`{"owner_param":"author_id"}`)})
	require.NoError(t, err)
	_, err = m.CreateRole(ctx, "author", "")
	require.NoError(t, err)
	_, err = m.CreatePermission(ctx, "post.update", "")
	require.NoError(t, err)
	_, err = m.CreateItem(ctx, authz.Item{Name: "post.update.own", Type: authz.TypePermission, RuleName: "is_author"})
	require.NoError(t, err)
	require.NoError(t, m.AddChild(ctx, "author", "post.update.own"))
	require.NoError(t, m.AddChild(ctx, "post.update.own", "post.update"))
	_, err = m.Assign(ctx, "u-alice", "author")
	require.NoError(t, err)
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func checkAllowed(t *testing.T, srv *httptest.Server, req CheckRequest) bool {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/check", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out CheckResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Allowed
}

func TestCheckEndpoint(t *testing.T) {
	srv, m := newTestServer(t, &shared.Principal{UserID: "svc", Super: true})
	seedPosts(t, m)

	require.True(t, checkAllowed(t, srv, CheckRequest{
		UserID:     "u-alice",
		Permission: "post.update",
		Params:     map[string]any{"author_id": "u-alice"},
	}))
	require.False(t, checkAllowed(t, srv, CheckRequest{
		UserID:     "u-alice",
		Permission: "post.update",
		Params:     map[string]any{"author_id": "u-bob"},
	}))
	require.False(t, checkAllowed(t, srv, CheckRequest{UserID: "u-ghost", Permission: "post.update"}))
	require.False(t, checkAllowed(t, srv, CheckRequest{UserID: "u-alice", Permission: "ghost"}))

	resp := doJSON(t, http.MethodPost, srv.URL+"/check", CheckRequest{UserID: "u-alice"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAssignmentLifecycle(t *testing.T) {
	srv, m := newTestServer(t, &shared.Principal{UserID: "root", Super: true})
	seedPosts(t, m)

	resp := doJSON(t, http.MethodPost, srv.URL+"/assignments", AssignRequest{UserID: "u-bob", ItemName: "author"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/assignments", AssignRequest{UserID: "u-bob", ItemName: "author"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/assignments", AssignRequest{UserID: "u-bob", ItemName: "ghost"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/assignments/u-bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []AssignmentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	require.Equal(t, "author", list[0].ItemName)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/assignments/u-bob/author", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = doJSON(t, http.MethodDelete, srv.URL+"/assignments/u-bob/author", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Revoke-all stays 204 no matter how often it runs.
	resp = doJSON(t, http.MethodDelete, srv.URL+"/assignments/u-alice", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = doJSON(t, http.MethodDelete, srv.URL+"/assignments/u-alice", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAssignmentGuard(t *testing.T) {
	srv, m := newTestServer(t, &shared.Principal{UserID: "u-alice"})
	seedPosts(t, m)

	// Check is open to any authenticated principal.
	require.True(t, checkAllowed(t, srv, CheckRequest{
		UserID:     "u-alice",
		Permission: "post.update",
		Params:     map[string]any{"author_id": "u-alice"},
	}))

	// Assignment administration is not.
	resp := doJSON(t, http.MethodPost, srv.URL+"/assignments", AssignRequest{UserID: "u-alice", ItemName: "author"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = doJSON(t, http.MethodGet, srv.URL+"/assignments/u-alice", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}
