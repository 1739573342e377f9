package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

func testResolver() *Resolver {
	return &Resolver{Now: func() time.Time { return fixedNow }}
}

func ruleProductState() ProductState {
	brand := uint(7)
	return ProductState{
		ID:                     42,
		SKU:                    "ROT-42",
		BrandID:                &brand,
		CategoryIDs:            []uint{3, 9},
		Cost:                   d("50"),
		RetailPrice:            d("60"),
		Policy:                 defaultPolicy(),
		CompetitorMatchEnabled: true,
		StockQuantity:          3,
		IsActive:               true,
	}
}

func rule(id uint, scope Scope, ids []uint, priority int) Rule {
	return Rule{
		ID:        id,
		Name:      "rule",
		RuleType:  RuleMarginBased,
		Priority:  priority,
		AppliesTo: scope,
		ScopeIDs:  ids,
		Action:    Action{Type: ActionMarkupPercent, Value: d("30")},
		IsActive:  true,
		UpdatedAt: fixedNow.Add(-time.Hour),
	}
}

func TestResolve_ScopeOutranksPriority(t *testing.T) {
	rules := []Rule{
		rule(1, ScopeAll, nil, 100),
		rule(2, ScopeBrand, []uint{7}, 50),
		rule(3, ScopeCategory, []uint{9}, 10),
		rule(4, ScopeProduct, []uint{42}, 0),
	}
	got := testResolver().Resolve(ruleProductState(), d("50"), rules)
	require.NotNil(t, got)
	assert.Equal(t, uint(4), got.ID)

	got = testResolver().Resolve(ruleProductState(), d("50"), rules[:3])
	require.NotNil(t, got)
	assert.Equal(t, uint(3), got.ID, "category outranks brand")

	got = testResolver().Resolve(ruleProductState(), d("50"), rules[:2])
	require.NotNil(t, got)
	assert.Equal(t, uint(2), got.ID, "brand outranks all")
}

func TestResolve_OutOfScopeIgnored(t *testing.T) {
	rules := []Rule{
		rule(1, ScopeProduct, []uint{99}, 10),
		rule(2, ScopeCategory, []uint{1}, 10),
		rule(3, ScopeBrand, []uint{8}, 10),
	}
	assert.Nil(t, testResolver().Resolve(ruleProductState(), d("50"), rules))
}

func TestResolve_TieBreakIsDeterministic(t *testing.T) {
	older := rule(10, ScopeAll, nil, 5)
	newer := rule(5, ScopeAll, nil, 5)
	newer.UpdatedAt = fixedNow
	got := testResolver().Resolve(ruleProductState(), d("50"), []Rule{older, newer})
	require.NotNil(t, got)
	assert.Equal(t, uint(5), got.ID, "most recently updated wins")

	a := rule(10, ScopeAll, nil, 5)
	b := rule(11, ScopeAll, nil, 5)
	got = testResolver().Resolve(ruleProductState(), d("50"), []Rule{a, b})
	require.NotNil(t, got)
	assert.Equal(t, uint(11), got.ID, "highest id wins on equal timestamps")

	got = testResolver().Resolve(ruleProductState(), d("50"), []Rule{b, a})
	assert.Equal(t, uint(11), got.ID)
}

func TestResolve_SkipsInactiveAndFalsyConditions(t *testing.T) {
	inactive := rule(1, ScopeProduct, []uint{42}, 10)
	inactive.IsActive = false
	guarded := rule(2, ScopeProduct, []uint{42}, 9)
	guarded.Conditions = []byte(`{">": [{"var": "product.stock_quantity"}, 10]}`)
	fallback := rule(3, ScopeProduct, []uint{42}, 1)

	got := testResolver().Resolve(ruleProductState(), d("50"), []Rule{inactive, guarded, fallback})
	require.NotNil(t, got)
	assert.Equal(t, uint(3), got.ID)
}

func TestResolve_SkipsCompetitorMatchWhenDisabled(t *testing.T) {
	cm := rule(1, ScopeProduct, []uint{42}, 10)
	cm.RuleType = RuleCompetitorMatch
	cm.Action = Action{Type: ActionMatchCompetitor}
	st := ruleProductState()
	st.CompetitorMatchEnabled = false

	assert.Nil(t, testResolver().Resolve(st, d("50"), []Rule{cm}))

	st.CompetitorMatchEnabled = true
	got := testResolver().Resolve(st, d("50"), []Rule{cm})
	require.NotNil(t, got)
	assert.Equal(t, uint(1), got.ID)
}

func TestResolve_NoRules(t *testing.T) {
	assert.Nil(t, testResolver().Resolve(ruleProductState(), d("50"), nil))
}
