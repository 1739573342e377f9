package service

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jlongo78/joe-ritchey-machining/internal/config"
	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/model"
	"github.com/jlongo78/joe-ritchey-machining/internal/pricing"
)

// Settings carries the pricing knobs every service needs.
type Settings struct {
	Defaults             pricing.Policy
	ApprovalThresholdPct decimal.Decimal
	CompetitorMaxAge     time.Duration
	FeedTimeout          time.Duration
	DefaultRateLimit     int
	LeaseTTL             time.Duration
	SyncBatchSize        int
	BulkChunkSize        int
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Defaults: pricing.Policy{
			MinMargin: decimal.NewFromFloat(cfg.DefaultMinMarginPct),
			MaxMargin: decimal.NewFromFloat(cfg.DefaultMaxMarginPct),
			Rounding:  pricing.Rounding(cfg.DefaultRounding),
		},
		ApprovalThresholdPct: decimal.NewFromFloat(cfg.ApprovalThresholdPct),
		CompetitorMaxAge:     cfg.CompetitorPriceMaxAge(),
		FeedTimeout:          cfg.FeedTimeout(),
		DefaultRateLimit:     cfg.FeedDefaultRateLimit,
		LeaseTTL:             cfg.LeaseTTL(),
		SyncBatchSize:        positiveOr(cfg.SyncBatchSize, 100),
		BulkChunkSize:        positiveOr(cfg.BulkChunkSize, 200),
	}
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// toState builds the pipeline's value snapshot of a product.
func toState(p *model.Product, defaults pricing.Policy) pricing.ProductState {
	cats := make([]uint, 0, len(p.Categories))
	for _, c := range p.Categories {
		cats = append(cats, c.ID)
	}
	var upc string
	if p.UPC != nil {
		upc = *p.UPC
	}
	return pricing.ProductState{
		ID:                     p.ID,
		SKU:                    p.SKU,
		UPC:                    upc,
		Name:                   p.Name,
		BrandID:                p.BrandID,
		CategoryIDs:            cats,
		Cost:                   p.Cost,
		RetailPrice:            p.RetailPrice,
		Policy:                 pricing.EffectivePolicy(defaults, p.MinMarginPercent, p.MaxMarginPercent, p.PriceRounding),
		CompetitorMatchEnabled: p.CompetitorMatchEnabled,
		StockQuantity:          p.StockQuantity,
		IsActive:               p.IsActive,
		Version:                p.PriceVersion,
	}
}

func toRule(r *model.PriceAdjustmentRule) pricing.Rule {
	cfg := r.ActionConfig.Data()
	return pricing.Rule{
		ID:         r.ID,
		Name:       r.Name,
		RuleType:   pricing.RuleType(r.RuleType),
		Priority:   r.Priority,
		AppliesTo:  pricing.Scope(r.AppliesTo),
		ScopeIDs:   []uint(r.ScopeIDs),
		Conditions: []byte(r.Conditions),
		Action: pricing.Action{
			Type:       pricing.ActionType(r.ActionType),
			Value:      r.ActionValue,
			OffsetType: cfg.OffsetType,
		},
		RequiresApproval: cfg.RequiresApproval,
		IsActive:         r.IsActive,
		UpdatedAt:        r.UpdatedAt,
	}
}

func toRules(rows []model.PriceAdjustmentRule) []pricing.Rule {
	out := make([]pricing.Rule, 0, len(rows))
	for i := range rows {
		out = append(out, toRule(&rows[i]))
	}
	return out
}

func nullDecimalPtr(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}

func historyToDTO(h *model.PriceHistory) dto.PriceHistoryItem {
	return dto.PriceHistoryItem{
		ID:              h.ID,
		ProductID:       h.ProductID,
		SupplierID:      h.SupplierID,
		CompetitorID:    h.CompetitorID,
		CostPrice:       nullDecimalPtr(h.CostPrice),
		RetailPrice:     nullDecimalPtr(h.RetailPrice),
		CompetitorPrice: nullDecimalPtr(h.CompetitorPrice),
		Source:          h.Source,
		Notes:           h.Notes,
		ChangedBy:       h.ChangedBy,
		RecordedAt:      h.RecordedAt,
	}
}

func adjustmentToDTO(l *model.PriceAdjustmentLog) dto.AdjustmentItem {
	item := dto.AdjustmentItem{
		ID:                 l.ID,
		ProductID:          l.ProductID,
		RuleID:             l.RuleID,
		OldPrice:           l.OldPrice,
		NewPrice:           l.NewPrice,
		OldCost:            nullDecimalPtr(l.OldCost),
		NewCost:            nullDecimalPtr(l.NewCost),
		MarginAchieved:     l.MarginAchieved,
		PriceChangePercent: l.PriceChangePercent,
		Reason:             l.Reason,
		Status:             l.Status,
		ApprovedBy:         l.ApprovedBy,
		ApprovedAt:         l.ApprovedAt,
		CreatedAt:          l.CreatedAt,
	}
	if l.Rule != nil {
		item.RuleName = l.Rule.Name
	}
	return item
}

func strPtr(s string) *string { return &s }

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}
