// Package pricing holds the pure pricing domain: rule resolution, the
// margin-constrained price calculator, rounding policies and the supplier /
// competitor feed parser. Nothing in this package touches the database.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

type Rounding string

const (
	RoundNearest99 Rounding = "nearest_99"
	RoundNearest95 Rounding = "nearest_95"
	RoundNone      Rounding = "none"
)

func (r Rounding) Valid() bool {
	switch r {
	case RoundNearest99, RoundNearest95, RoundNone:
		return true
	}
	return false
}

type RuleType string

const (
	RuleMarginBased     RuleType = "margin_based"
	RuleCompetitorMatch RuleType = "competitor_match"
	RuleTimeBased       RuleType = "time_based"
	RuleInventoryBased  RuleType = "inventory_based"
)

func (t RuleType) Valid() bool {
	switch t {
	case RuleMarginBased, RuleCompetitorMatch, RuleTimeBased, RuleInventoryBased:
		return true
	}
	return false
}

type Scope string

const (
	ScopeProduct  Scope = "product"
	ScopeCategory Scope = "category"
	ScopeBrand    Scope = "brand"
	ScopeAll      Scope = "all"
)

func (s Scope) Valid() bool {
	switch s {
	case ScopeProduct, ScopeCategory, ScopeBrand, ScopeAll:
		return true
	}
	return false
}

type ActionType string

const (
	ActionSetMargin       ActionType = "set_margin"
	ActionMarkupPercent   ActionType = "markup_percent"
	ActionMarkupFixed     ActionType = "markup_fixed"
	ActionMatchCompetitor ActionType = "match_competitor"
	ActionApplyDiscount   ActionType = "apply_discount"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionSetMargin, ActionMarkupPercent, ActionMarkupFixed, ActionMatchCompetitor, ActionApplyDiscount:
		return true
	}
	return false
}

// Offset types for match_competitor.
const (
	OffsetPercent = "percent"
	OffsetFixed   = "fixed"
)

type Source string

const (
	SourceSupplierAPI Source = "supplier_api"
	SourceManual      Source = "manual"
	SourceCompetitor  Source = "competitor"
	SourceAutomatic   Source = "automatic"
)

type AdjustmentStatus string

const (
	StatusApplied         AdjustmentStatus = "applied"
	StatusPendingApproval AdjustmentStatus = "pending_approval"
	StatusRejected        AdjustmentStatus = "rejected"
)

func (s AdjustmentStatus) Valid() bool {
	switch s {
	case StatusApplied, StatusPendingApproval, StatusRejected:
		return true
	}
	return false
}

// Policy is the effective margin window and rounding rule of one product.
type Policy struct {
	MinMargin decimal.Decimal
	MaxMargin decimal.Decimal
	Rounding  Rounding
}

// ProductState is the snapshot of a product the pipeline computes against.
// Version is the optimistic concurrency token read together with the prices.
type ProductState struct {
	ID                     uint
	SKU                    string
	UPC                    string
	Name                   string
	BrandID                *uint
	CategoryIDs            []uint
	Cost                   decimal.Decimal
	RetailPrice            decimal.Decimal
	Policy                 Policy
	CompetitorMatchEnabled bool
	StockQuantity          int
	IsActive               bool
	Version                int64
}

// Action is the price-producing part of a rule.
type Action struct {
	Type       ActionType
	Value      decimal.Decimal
	OffsetType string
}

// Rule is the resolver's view of a stored rule.
type Rule struct {
	ID               uint
	Name             string
	RuleType         RuleType
	Priority         int
	AppliesTo        Scope
	ScopeIDs         []uint
	Conditions       []byte
	Action           Action
	RequiresApproval bool
	IsActive         bool
	UpdatedAt        time.Time
}

// Clamp tells which margin bound, if any, moved the candidate price.
type Clamp string

const (
	ClampNone Clamp = ""
	ClampMin  Clamp = "min"
	ClampMax  Clamp = "max"
)

// Quote is the calculator's output for one product.
type Quote struct {
	Cost          decimal.Decimal
	OldPrice      decimal.Decimal
	Candidate     decimal.Decimal
	Price         decimal.Decimal
	Margin        decimal.Decimal
	ChangePercent decimal.Decimal
	Clamp         Clamp
	NoOp          bool
}

func (q Quote) Clamped() bool { return q.Clamp != ClampNone }
