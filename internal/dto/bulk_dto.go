package dto

import "github.com/shopspring/decimal"

type BulkUpdateRequest struct {
	Scope           string          `json:"scope"            validate:"required,oneof=all category brand product_ids"`
	ScopeIDs        []uint          `json:"scope_ids"        validate:"required_unless=Scope all"`
	AdjustmentType  string          `json:"adjustment_type"  validate:"required,oneof=percentage fixed set set_margin"`
	AdjustmentValue decimal.Decimal `json:"adjustment_value"`
	ApplyRounding   bool            `json:"apply_rounding"`
	Reason          string          `json:"reason"           validate:"required,min=3,max=500"`
	// PreviewOnly defaults to true when omitted.
	PreviewOnly *bool `json:"preview_only"`
}

type BulkPreviewItem struct {
	ProductID     uint            `json:"product_id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Cost          decimal.Decimal `json:"cost"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	NewPrice      decimal.Decimal `json:"new_price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	NewMargin     decimal.Decimal `json:"new_margin"`
}

type BulkUpdateResponse struct {
	PreviewOnly       bool              `json:"preview_only"`
	ProductsProcessed int               `json:"products_processed"`
	ProductsUpdated   int               `json:"products_updated"`
	ProductsUnchanged int               `json:"products_unchanged"`
	Items             []BulkPreviewItem `json:"items"`
	Errors            []ItemError       `json:"errors"`
}
