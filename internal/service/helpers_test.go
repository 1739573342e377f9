package service

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/jlongo78/joe-ritchey-machining/internal/model"
	"github.com/jlongo78/joe-ritchey-machining/internal/pricing"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func testSettings() Settings {
	return Settings{
		Defaults: pricing.Policy{
			MinMargin: d("15"),
			MaxMargin: d("40"),
			Rounding:  pricing.RoundNearest99,
		},
		CompetitorMaxAge:     72 * time.Hour,
		FeedTimeout:          5 * time.Second,
		DefaultRateLimit:     60,
		LeaseTTL:             10 * time.Minute,
		SyncBatchSize:        10,
		BulkChunkSize:        3,
	}
}

func seedProduct(st *memStore, sku, cost, retail string) model.Product {
	return st.addProduct(model.Product{
		SKU:                    sku,
		Name:                   "Part " + sku,
		Cost:                   d(cost),
		RetailPrice:            d(retail),
		CompetitorMatchEnabled: true,
	})
}

func seedRule(st *memStore, action pricing.ActionType, value string, cfg model.RuleActionConfig) model.PriceAdjustmentRule {
	ruleType := "margin_based"
	if action == pricing.ActionMatchCompetitor {
		ruleType = "competitor_match"
	}
	return st.addRule(model.PriceAdjustmentRule{
		Name:         string(action) + " " + value,
		RuleType:     ruleType,
		Priority:     10,
		AppliesTo:    "all",
		ActionType:   string(action),
		ActionValue:  d(value),
		ActionConfig: datatypes.NewJSONType(cfg),
		IsActive:     true,
		UpdatedAt:    testNow,
	})
}

func decimalNull(s string) decimal.NullDecimal { return decimal.NewNullDecimal(d(s)) }
