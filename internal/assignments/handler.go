package assignments

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aegis-rbac/aegis/internal/authz"
	"github.com/aegis-rbac/aegis/internal/observability"
	"github.com/aegis-rbac/aegis/internal/platform/httpx"
	"github.com/aegis-rbac/aegis/internal/shared"
)

// Handler manages user-assignment administration and the access-check
// endpoint consumed by relying services.
type Handler struct {
	logger   *slog.Logger
	manager  *authz.Manager
	validate *validator.Validate
	audit    *shared.AuditLogger
	guard    authz.Middleware
	metrics  *observability.Metrics
}

// NewHandler builds a Handler instance. metrics may be nil.
func NewHandler(logger *slog.Logger, manager *authz.Manager, audit *shared.AuditLogger, guard authz.Middleware, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:   logger,
		manager:  manager,
		validate: validator.New(),
		audit:    audit,
		guard:    guard,
		metrics:  metrics,
	}
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	a, err := h.manager.Assign(r.Context(), req.UserID, req.ItemName)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "assignment.create", req.UserID, map[string]any{"item": req.ItemName})
	httpx.JSON(w, http.StatusCreated, toAssignmentResponse(a))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user")
	list, err := h.manager.Assignments(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssignmentResponses(list))
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user")
	itemName := chi.URLParam(r, "item")
	if err := h.manager.Revoke(r.Context(), userID, itemName); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "assignment.revoke", userID, map[string]any{"item": itemName})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeAll(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user")
	if err := h.manager.RevokeAll(r.Context(), userID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "assignment.revoke_all", userID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	allowed, err := h.manager.CheckAccess(r.Context(), req.UserID, req.Permission, req.Params)
	if err != nil {
		// Relying services treat errors as deny + log; surface the failure
		// class so they can distinguish outage from denial.
		h.logger.Error("check access", slog.Any("error", err),
			slog.String("user", req.UserID), slog.String("permission", req.Permission))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.RecordCheck(allowed)
	httpx.JSON(w, http.StatusOK, CheckResponse{Allowed: allowed})
}

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
