package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceHistory records one price/cost observation for a product.
// Rows are immutable: they are only ever appended.
// RetailPrice is set only when the row records a retail price transition.
type PriceHistory struct {
	ID              uint                `gorm:"primaryKey"`
	ProductID       uint                `gorm:"index:idx_price_history_product_recorded,priority:1;not null"`
	SupplierID      *uint               `gorm:"index"`
	CompetitorID    *uint               `gorm:"index"`
	CostPrice       decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	RetailPrice     decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	CompetitorPrice decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	Source          string              `gorm:"size:20;not null"` // supplier_api | manual | competitor | automatic
	Notes           *string
	ChangedBy       *uint
	RecordedAt      time.Time `gorm:"index:idx_price_history_product_recorded,priority:2;not null"`
}

func (PriceHistory) TableName() string { return "price_history" }
