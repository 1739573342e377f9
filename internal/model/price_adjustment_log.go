package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PriceAdjustmentLog is the audit row of a rule-triggered change. Only the
// Status / ApprovedBy / ApprovedAt fields of a pending_approval row may change,
// and only once.
type PriceAdjustmentLog struct {
	ID                 uint                `gorm:"primaryKey"`
	ProductID          uint                `gorm:"index;not null"`
	RuleID             *uint               `gorm:"index"`
	OldPrice           decimal.Decimal     `gorm:"type:numeric(12,2);not null"`
	NewPrice           decimal.Decimal     `gorm:"type:numeric(12,2);not null"`
	OldCost            decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	NewCost            decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	MarginAchieved     decimal.Decimal     `gorm:"type:numeric(7,2);not null"`
	PriceChangePercent decimal.Decimal     `gorm:"type:numeric(9,2);not null"`
	Reason             string
	Details            datatypes.JSON
	Status             string `gorm:"size:20;not null;default:'applied';index"` // applied | pending_approval | rejected
	ApprovedBy         *uint
	ApprovedAt         *time.Time
	CreatedAt          time.Time

	Rule *PriceAdjustmentRule `gorm:"foreignKey:RuleID"`
}
