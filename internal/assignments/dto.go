package assignments

import (
	"time"

	"github.com/aegis-rbac/aegis/internal/authz"
)

type AssignRequest struct {
	UserID   string `json:"user_id" validate:"required,max=128"`
	ItemName string `json:"item_name" validate:"required,max=128"`
}

type CheckRequest struct {
	UserID     string         `json:"user_id" validate:"required,max=128"`
	Permission string         `json:"permission" validate:"required,max=128"`
	Params     map[string]any `json:"params,omitempty"`
}

type CheckResponse struct {
	Allowed bool `json:"allowed"`
}

type AssignmentResponse struct {
	UserID    string    `json:"user_id"`
	ItemName  string    `json:"item_name"`
	CreatedAt time.Time `json:"created_at"`
}

func toAssignmentResponse(a authz.Assignment) AssignmentResponse {
	return AssignmentResponse{UserID: a.UserID, ItemName: a.ItemName, CreatedAt: a.CreatedAt}
}

func toAssignmentResponses(list []authz.Assignment) []AssignmentResponse {
	out := make([]AssignmentResponse, len(list))
	for i, a := range list {
		out[i] = toAssignmentResponse(a)
	}
	return out
}
