package items

import (
	"encoding/json"
	"time"

	"github.com/aegis-rbac/aegis/internal/authz"
	"github.com/aegis-rbac/aegis/internal/shared"
)

type CreateItemRequest struct {
	Name        string          `json:"name" validate:"required,max=128"`
	Type        string          `json:"type" validate:"required,oneof=role permission"`
	Description string          `json:"description,omitempty" validate:"omitempty,max=500"`
	RuleName    string          `json:"rule_name,omitempty" validate:"omitempty,max=128"`
	Data        json.RawMessage `json:"data,omitempty"`
}

type UpdateItemRequest struct {
	Description *string         `json:"description,omitempty" validate:"omitempty,max=500"`
	RuleName    *string         `json:"rule_name,omitempty" validate:"omitempty,max=128"`
	Data        json.RawMessage `json:"data,omitempty"`
}

type CreateRuleRequest struct {
	Name string          `json:"name" validate:"required,max=128"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ItemResponse struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	RuleName    string          `json:"rule_name,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ListItemsResponse struct {
	Items      []ItemResponse    `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

type RuleResponse struct {
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toItemResponse(item authz.Item) ItemResponse {
	return ItemResponse{
		Name:        item.Name,
		Type:        item.Type.String(),
		Description: item.Description,
		RuleName:    item.RuleName,
		Data:        json.RawMessage(item.Data),
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func toItemResponses(items []authz.Item) []ItemResponse {
	out := make([]ItemResponse, len(items))
	for i, item := range items {
		out[i] = toItemResponse(item)
	}
	return out
}

func toRuleResponse(rule authz.Rule) RuleResponse {
	return RuleResponse{
		Name:      rule.Name,
		Data:      json.RawMessage(rule.Data),
		CreatedAt: rule.CreatedAt,
		UpdatedAt: rule.UpdatedAt,
	}
}
