package items

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
	handler := NewHandler(logger, manager, nil, authz.Middleware{Manager: manager, Logger: logger})

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

func TestItemCRUD(t *testing.T) {
	srv, _ := newTestServer(t, &shared.Principal{UserID: "root", Super: true})

	resp := doJSON(t, http.MethodPost, srv.URL+"/items", CreateItemRequest{Name: "admin", Type: "role", Description: "root role"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created ItemResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Equal(t, "admin", created.Name)
	require.Equal(t, "role", created.Type)

	resp = doJSON(t, http.MethodPost, srv.URL+"/items", CreateItemRequest{Name: "admin", Type: "permission"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/items", CreateItemRequest{Name: "x", Type: "group"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	desc := "updated"
	resp = doJSON(t, http.MethodPatch, srv.URL+"/items/admin", UpdateItemRequest{Description: &desc})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated ItemResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	require.Equal(t, "updated", updated.Description)

	resp = doJSON(t, http.MethodGet, srv.URL+"/items/admin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/items/ghost", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/items/admin", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/items/admin", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListItemsFilter(t *testing.T) {
	srv, m := newTestServer(t, &shared.Principal{UserID: "root", Super: true})
	ctx := context.Background()
	_, err := m.CreateRole(ctx, "admin", "")
	require.NoError(t, err)
	_, err = m.CreatePermission(ctx, "post.view", "")
	require.NoError(t, err)

	resp := doJSON(t, http.MethodGet, srv.URL+"/items?type=permission", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list ListItemsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Items, 1)
	require.Equal(t, "post.view", list.Items[0].Name)
	require.Equal(t, 1, list.Pagination.Total)
}

func TestListItemsPagination(t *testing.T) {
	srv, m := newTestServer(t, &shared.Principal{UserID: "root", Super: true})
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		_, err := m.CreateRole(ctx, name, "")
		require.NoError(t, err)
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/items?page=2&per_page=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list ListItemsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Items, 2)
	require.Equal(t, "c", list.Items[0].Name)
	require.Equal(t, 5, list.Pagination.Total)
	require.Equal(t, 3, list.Pagination.TotalPages)

	// Pages past the end come back empty, not as an error.
	resp = doJSON(t, http.MethodGet, srv.URL+"/items?page=9&per_page=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list = ListItemsResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Empty(t, list.Items)
}

func TestHierarchyEndpoints(t *testing.T) {
	srv, m := newTestServer(t, &shared.Principal{UserID: "root", Super: true})
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		_, err := m.CreateRole(ctx, name, "")
		require.NoError(t, err)
	}

	resp := doJSON(t, http.MethodPut, srv.URL+"/items/a/children/b", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = doJSON(t, http.MethodPut, srv.URL+"/items/b/children/c", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Closing the loop must be refused.
	resp = doJSON(t, http.MethodPut, srv.URL+"/items/c/children/a", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/items/a/descendants", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var items []ItemResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	require.Len(t, items, 2)

	resp = doJSON(t, http.MethodGet, srv.URL+"/items/c/ancestors", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	require.Len(t, items, 2)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/items/a/children/b", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = doJSON(t, http.MethodDelete, srv.URL+"/items/a/children/b", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRuleEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, &shared.Principal{UserID: "root", Super: true})

	resp := doJSON(t, http.MethodPost, srv.URL+"/rules", CreateRuleRequest{Name: "is_author", Data: json.RawMessage(`{"owner_param":"author_id"}`)})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/items", CreateItemRequest{Name: "post.update.own", Type: "permission", RuleName: "is_author"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Items may not reference rules that do not exist.
	resp = doJSON(t, http.MethodPost, srv.URL+"/items", CreateItemRequest{Name: "x", Type: "permission", RuleName: "ghost"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// A referenced rule may not be deleted.
	resp = doJSON(t, http.MethodDelete, srv.URL+"/rules/is_author", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/items/post.update.own", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = doJSON(t, http.MethodDelete, srv.URL+"/rules/is_author", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestGuardDeniesWithoutPermission(t *testing.T) {
	srv, m := newTestServer(t, &shared.Principal{UserID: "u-viewer"})
	ctx := context.Background()

	_, err := m.CreatePermission(ctx, "authz.item.view", "")
	require.NoError(t, err)
	_, err = m.Assign(ctx, "u-viewer", "authz.item.view")
	require.NoError(t, err)

	resp := doJSON(t, http.MethodGet, srv.URL+"/items", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Read permission does not unlock writes.
	resp = doJSON(t, http.MethodPost, srv.URL+"/items", CreateItemRequest{Name: "x", Type: "role"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}
