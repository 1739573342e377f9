package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog entity owned by the store module. The pricing engine
// reads its attributes and writes Cost / RetailPrice only through a
// compare-and-swap on PriceVersion.
type Product struct {
	ID          uint            `gorm:"primaryKey"`
	SKU         string          `gorm:"column:sku;uniqueIndex;not null"`
	UPC         *string         `gorm:"column:upc;index"`
	Name        string          `gorm:"index;not null"`
	BrandID     *uint           `gorm:"index"`
	Cost        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	RetailPrice decimal.Decimal `gorm:"type:numeric(12,2);not null"`

	// Per-product overrides of the global pricing policy; nil means "use default".
	MinMarginPercent       decimal.NullDecimal `gorm:"type:numeric(7,2)"`
	MaxMarginPercent       decimal.NullDecimal `gorm:"type:numeric(7,2)"`
	PriceRounding          *string             `gorm:"size:20"` // nearest_99 | nearest_95 | none
	CompetitorMatchEnabled bool                `gorm:"not null;default:true"`

	StockQuantity int  `gorm:"not null;default:0"`
	IsActive      bool `gorm:"not null;default:true;index"`

	// PriceVersion is bumped on every write of Cost or RetailPrice.
	PriceVersion int64 `gorm:"not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Brand      *Brand     `gorm:"foreignKey:BrandID"`
	Categories []Category `gorm:"many2many:product_categories"`
}

// Category represents a product category used to scope rules and reports.
type Category struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;not null"`
	IsActive  bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Brand represents a manufacturer brand.
type Brand struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;not null"`
	IsActive  bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
