package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Supplier represents a parts vendor.
type Supplier struct {
	ID        uint   `gorm:"primaryKey"`
	Code      string `gorm:"uniqueIndex;not null"`
	Name      string `gorm:"not null"`
	IsActive  bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time

	APIConfig *SupplierAPIConfig `gorm:"foreignKey:SupplierID"`
	Products  []ProductSupplier  `gorm:"foreignKey:SupplierID"`
}

// SupplierAPIConfig holds the feed endpoint of a supplier together with its
// durable scheduling state. The lease columns make a sync single-flight across
// worker instances.
type SupplierAPIConfig struct {
	ID            uint    `gorm:"primaryKey"`
	SupplierID    uint    `gorm:"uniqueIndex;not null"`
	APIType       string  `gorm:"size:20;not null;default:'rest'"` // rest | xmlrpc
	BaseURL       string  `gorm:"not null"`
	PriceEndpoint string
	RequestMethod string  `gorm:"size:10;not null;default:'GET'"`
	AuthType      string  `gorm:"size:20;not null;default:'none'"` // none | api_key | bearer
	APIKey        *string
	APIKeyHeader  *string
	AuthToken     *string
	FeedFormat    string  `gorm:"size:10;not null;default:'json'"` // json | xml | csv
	XMLRPCMethod  *string `gorm:"column:xmlrpc_method"`
	ExtraConfig   datatypes.JSON

	RateLimitPerMinute int `gorm:"not null;default:60"`
	TimeoutSeconds     int `gorm:"not null;default:30"`
	SyncIntervalHours  int `gorm:"not null;default:24"`

	NextSyncAt     *time.Time `gorm:"index"`
	LastSyncAt     *time.Time
	LastSyncStatus *string
	LastSyncError  *string
	LeaseToken     *string
	LeaseExpiresAt *time.Time

	IsActive  bool `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Supplier *Supplier `gorm:"foreignKey:SupplierID"`
}

// ProductSupplier links a product to a supplier SKU with the last known cost.
type ProductSupplier struct {
	ID                uint                `gorm:"primaryKey"`
	ProductID         uint                `gorm:"index;not null"`
	SupplierID        uint                `gorm:"index;not null"`
	SupplierSKU       string              `gorm:"column:supplier_sku;index"`
	CostPrice         decimal.Decimal     `gorm:"type:numeric(12,2);not null"`
	LastCostPrice     decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	LastCheckedAt     *time.Time
	LastPriceChangeAt *time.Time
	IsActive          bool `gorm:"not null;default:true"`
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Product *Product `gorm:"foreignKey:ProductID"`
}
