package dto

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type RuleActionConfigInput struct {
	OffsetType       string `json:"offset_type"       validate:"omitempty,oneof=percent fixed"`
	RequiresApproval bool   `json:"requires_approval"`
}

type CreateRuleRequest struct {
	Name         string                `json:"name"          validate:"required,min=1,max=100"`
	Description  *string               `json:"description"`
	RuleType     string                `json:"rule_type"     validate:"required,oneof=margin_based competitor_match time_based inventory_based"`
	Conditions   json.RawMessage       `json:"conditions"    swaggertype:"object"`
	Priority     int                   `json:"priority"      validate:"min=0"`
	AppliesTo    string                `json:"applies_to"    validate:"required,oneof=all category brand product"`
	ScopeIDs     []uint                `json:"scope_ids"`
	ActionType   string                `json:"action_type"   validate:"required,oneof=set_margin markup_percent markup_fixed match_competitor apply_discount"`
	ActionValue  decimal.Decimal       `json:"action_value"`
	ActionConfig RuleActionConfigInput `json:"action_config"`
	IsActive     *bool                 `json:"is_active"`
}

// UpdateRuleRequest is a partial update: nil fields are left unchanged.
type UpdateRuleRequest struct {
	Name         *string                `json:"name"          validate:"omitempty,min=1,max=100"`
	Description  *string                `json:"description"`
	RuleType     *string                `json:"rule_type"     validate:"omitempty,oneof=margin_based competitor_match time_based inventory_based"`
	Conditions   json.RawMessage        `json:"conditions"    swaggertype:"object"`
	Priority     *int                   `json:"priority"      validate:"omitempty,min=0"`
	AppliesTo    *string                `json:"applies_to"    validate:"omitempty,oneof=all category brand product"`
	ScopeIDs     []uint                 `json:"scope_ids"`
	ActionType   *string                `json:"action_type"   validate:"omitempty,oneof=set_margin markup_percent markup_fixed match_competitor apply_discount"`
	ActionValue  *decimal.Decimal       `json:"action_value"`
	ActionConfig *RuleActionConfigInput `json:"action_config"`
	IsActive     *bool                  `json:"is_active"`
}

type RuleFilter struct {
	IsActive  *bool
	RuleType  string
	AppliesTo string
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type RuleResponse struct {
	ID           uint                  `json:"id"`
	Name         string                `json:"name"`
	Description  *string               `json:"description,omitempty"`
	RuleType     string                `json:"rule_type"`
	Conditions   json.RawMessage       `json:"conditions,omitempty" swaggertype:"object"`
	Priority     int                   `json:"priority"`
	AppliesTo    string                `json:"applies_to"`
	ScopeIDs     []uint                `json:"scope_ids"`
	ActionType   string                `json:"action_type"`
	ActionValue  decimal.Decimal       `json:"action_value"`
	ActionConfig RuleActionConfigInput `json:"action_config"`
	IsActive     bool                  `json:"is_active"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

type RuleListResponse struct {
	Data  []RuleResponse `json:"data"`
	Total int            `json:"total"`
}

// RepriceResponse describes the outcome of one pipeline run for one product.
// Status is applied, pending_approval, unchanged or no_rule.
type RepriceResponse struct {
	ProductID     uint            `json:"product_id"`
	RuleID        *uint           `json:"rule_id,omitempty"`
	Status        string          `json:"status"`
	Cost          decimal.Decimal `json:"cost"`
	OldPrice      decimal.Decimal `json:"old_price"`
	NewPrice      decimal.Decimal `json:"new_price"`
	Margin        decimal.Decimal `json:"margin_achieved"`
	ChangePercent decimal.Decimal `json:"price_change_percent"`
	Clamped       string          `json:"clamped,omitempty"`
	AdjustmentID  *uint           `json:"adjustment_id,omitempty"`
}
