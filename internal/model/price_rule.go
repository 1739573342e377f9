package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// RuleActionConfig carries the optional knobs of a rule action.
type RuleActionConfig struct {
	// OffsetType applies to match_competitor: "percent" (default) or "fixed".
	OffsetType       string `json:"offset_type,omitempty" yaml:"offset_type,omitempty"`
	RequiresApproval bool   `json:"requires_approval,omitempty" yaml:"requires_approval,omitempty"`
}

// PriceAdjustmentRule is an operator-configured automatic pricing rule.
type PriceAdjustmentRule struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"size:100;not null"`
	Description *string
	RuleType    string `gorm:"size:30;not null"` // margin_based | competitor_match | time_based | inventory_based

	// Conditions is an optional JsonLogic expression evaluated against the
	// product facts; a falsy result makes the rule inapplicable.
	Conditions datatypes.JSON

	Priority  int                       `gorm:"not null;default:0;index"`
	AppliesTo string                    `gorm:"size:20;not null;default:'all'"` // all | category | brand | product
	ScopeIDs  datatypes.JSONSlice[uint] `gorm:"column:scope_ids"`

	ActionType   string          `gorm:"size:30;not null"`
	ActionValue  decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	ActionConfig datatypes.JSONType[RuleActionConfig]

	IsActive  bool `gorm:"not null;default:true;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
