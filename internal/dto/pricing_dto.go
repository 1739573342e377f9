package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceHistoryItem is one row in the price-history list.
type PriceHistoryItem struct {
	ID              uint             `json:"id"`
	ProductID       uint             `json:"product_id"`
	SupplierID      *uint            `json:"supplier_id,omitempty"`
	CompetitorID    *uint            `json:"competitor_id,omitempty"`
	CostPrice       *decimal.Decimal `json:"cost_price"`
	RetailPrice     *decimal.Decimal `json:"retail_price"`
	CompetitorPrice *decimal.Decimal `json:"competitor_price"`
	Source          string           `json:"source"`
	Notes           *string          `json:"notes,omitempty"`
	ChangedBy       *uint            `json:"changed_by,omitempty"`
	RecordedAt      time.Time        `json:"recorded_at"`
}

// PriceHistoryResponse is returned by GET /v1/pricing/history/:product_id.
type PriceHistoryResponse struct {
	ProductID uint               `json:"product_id"`
	Days      int                `json:"days"`
	History   []PriceHistoryItem `json:"history"`
	Count     int                `json:"count"`
}

// ManualPriceRequest is the operator's direct edit of a product's cost and/or
// retail price.
type ManualPriceRequest struct {
	NewCost        *decimal.Decimal `json:"new_cost"         validate:"omitempty,gt=0"`
	NewRetailPrice *decimal.Decimal `json:"new_retail_price" validate:"omitempty,gt=0"`
	Reason         string           `json:"reason"           validate:"required,min=3,max=500"`
}

type ManualPriceResponse struct {
	ProductID   uint             `json:"product_id"`
	Cost        decimal.Decimal  `json:"cost"`
	RetailPrice decimal.Decimal  `json:"retail_price"`
	Changed     bool             `json:"changed"`
	Reprice     *RepriceResponse `json:"reprice,omitempty"`
}

type AdjustmentFilter struct {
	ProductID *uint
	Status    string
	Page      int
	Limit     int
}

type AdjustmentItem struct {
	ID                 uint             `json:"id"`
	ProductID          uint             `json:"product_id"`
	RuleID             *uint            `json:"rule_id,omitempty"`
	RuleName           string           `json:"rule_name,omitempty"`
	OldPrice           decimal.Decimal  `json:"old_price"`
	NewPrice           decimal.Decimal  `json:"new_price"`
	OldCost            *decimal.Decimal `json:"old_cost"`
	NewCost            *decimal.Decimal `json:"new_cost"`
	MarginAchieved     decimal.Decimal  `json:"margin_achieved"`
	PriceChangePercent decimal.Decimal  `json:"price_change_percent"`
	Reason             string           `json:"reason"`
	Status             string           `json:"status"`
	ApprovedBy         *uint            `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time       `json:"approved_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}

type AdjustmentListResponse struct {
	Data  []AdjustmentItem `json:"data"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

// MarginItem is one product row of a margin analysis.
type MarginItem struct {
	ProductID     uint            `json:"product_id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Cost          decimal.Decimal `json:"cost"`
	RetailPrice   decimal.Decimal `json:"retail_price"`
	MarginPercent decimal.Decimal `json:"margin_percent"`
	MarginAmount  decimal.Decimal `json:"margin_amount"`
	MinMargin     decimal.Decimal `json:"min_margin_percent"`
	MaxMargin     decimal.Decimal `json:"max_margin_percent"`
}

type MarginAnalysisResponse struct {
	Scope         string          `json:"scope"`
	ScopeID       *uint           `json:"scope_id,omitempty"`
	ProductCount  int             `json:"product_count"`
	AverageMargin decimal.Decimal `json:"average_margin"`
	MinMargin     decimal.Decimal `json:"min_margin"`
	MaxMargin     decimal.Decimal `json:"max_margin"`
	BelowMin      []MarginItem    `json:"below_min"`
	AboveMax      []MarginItem    `json:"above_max"`
	Products      []MarginItem    `json:"products"`
	GeneratedAt   time.Time       `json:"generated_at"`
}
