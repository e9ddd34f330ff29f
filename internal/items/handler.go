package items

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aegis-rbac/aegis/internal/authz"
	"github.com/aegis-rbac/aegis/internal/platform/httpx"
	"github.com/aegis-rbac/aegis/internal/shared"
)

// Handler manages item, rule and hierarchy administration endpoints.
type Handler struct {
	logger   *slog.Logger
	manager  *authz.Manager
	validate *validator.Validate
	audit    *shared.AuditLogger
	guard    authz.Middleware
}

// NewHandler builds a Handler instance. audit may be nil when no audit sink
// is configured.
func NewHandler(logger *slog.Logger, manager *authz.Manager, audit *shared.AuditLogger, guard authz.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		manager:  manager,
		validate: validator.New(),
		audit:    audit,
		guard:    guard,
	}
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	var typ *authz.ItemType
	switch r.URL.Query().Get("type") {
	case "role":
		t := authz.TypeRole
		typ = &t
	case "permission":
		t := authz.TypePermission
		typ = &t
	}
	items, err := h.manager.ListItems(r.Context(), typ)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := shared.NewPagination(page, perPage, len(items))
	start, end := pagination.Window(len(items))
	httpx.JSON(w, http.StatusOK, ListItemsResponse{
		Items:      toItemResponses(items[start:end]),
		Pagination: pagination,
	})
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	typ := authz.TypeRole
	if req.Type == "permission" {
		typ = authz.TypePermission
	}
	item, err := h.manager.CreateItem(r.Context(), authz.Item{
		Name:        req.Name,
		Type:        typ,
		Description: req.Description,
		RuleName:    req.RuleName,
		Data:        req.Data,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "item.create", item.Name, map[string]any{"type": item.Type.String()})
	httpx.JSON(w, http.StatusCreated, toItemResponse(item))
}

func (h *Handler) showItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.manager.GetItem(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req UpdateItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	current, err := h.manager.GetItem(r.Context(), name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.Description != nil {
		current.Description = *req.Description
	}
	if req.RuleName != nil {
		current.RuleName = *req.RuleName
	}
	if req.Data != nil {
		current.Data = req.Data
	}
	updated, err := h.manager.UpdateItem(r.Context(), current)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "item.update", updated.Name, nil)
	httpx.JSON(w, http.StatusOK, toItemResponse(updated))
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.manager.DeleteItem(r.Context(), name); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "item.delete", name, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listChildren(w http.ResponseWriter, r *http.Request) {
	items, err := h.manager.Children(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponses(items))
}

func (h *Handler) listDescendants(w http.ResponseWriter, r *http.Request) {
	items, err := h.manager.Descendants(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponses(items))
}

func (h *Handler) listAncestors(w http.ResponseWriter, r *http.Request) {
	items, err := h.manager.Ancestors(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponses(items))
}

func (h *Handler) addChild(w http.ResponseWriter, r *http.Request) {
	parent := chi.URLParam(r, "name")
	child := chi.URLParam(r, "child")
	if err := h.manager.AddChild(r.Context(), parent, child); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "edge.add", parent, map[string]any{"child": child})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeChild(w http.ResponseWriter, r *http.Request) {
	parent := chi.URLParam(r, "name")
	child := chi.URLParam(r, "child")
	if err := h.manager.RemoveChild(r.Context(), parent, child); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "edge.remove", parent, map[string]any{"child": child})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.manager.ListRules(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]RuleResponse, len(rules))
	for i, rule := range rules {
		out[i] = toRuleResponse(rule)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rule, err := h.manager.CreateRule(r.Context(), authz.Rule{Name: req.Name, Data: req.Data})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "rule.create", rule.Name, nil)
	httpx.JSON(w, http.StatusCreated, toRuleResponse(rule))
}

func (h *Handler) showRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.manager.GetRule(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRuleResponse(rule))
}

func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.manager.DeleteRule(r.Context(), name); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "rule.delete", name, nil)
	w.WriteHeader(http.StatusNoContent)
}

// record writes an audit entry for a mutation. Audit failures are logged and
// never fail the request.
func (h *Handler) record(r *http.Request, action, entityID string, meta map[string]any) {
	if h.audit == nil {
		return
	}
	actor := ""
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		actor = p.UserID
	}
	err := h.audit.Record(r.Context(), shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "authz",
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil {
		h.logger.Warn("audit record", slog.Any("error", err))
	}
}
