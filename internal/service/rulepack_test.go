package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/model"
)

const samplePack = `
rules:
  - name: default markup
    rule_type: margin_based
    priority: 0
    applies_to: all
    action_type: markup_percent
    action_value: 30
  - name: brake parts follow competitors
    rule_type: competitor_match
    priority: 20
    applies_to: category
    scope_ids: [4]
    action_type: match_competitor
    action_value: "-2"
    action_config:
      offset_type: percent
      requires_approval: true
    conditions:
      ">": [{var: "product.stock_quantity"}, 5]
    is_active: false
`

func TestParseRulePack(t *testing.T) {
	rules, err := ParseRulePack([]byte(samplePack))
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "default markup", rules[0].Name)
	assert.Equal(t, "30", rules[0].ActionValue.String())
	assert.True(t, rules[0].IsActive)
	assert.Empty(t, rules[0].Conditions)

	r := rules[1]
	assert.Equal(t, "-2", r.ActionValue.String())
	assert.Equal(t, []uint{4}, []uint(r.ScopeIDs))
	assert.True(t, r.ActionConfig.Data().RequiresApproval)
	assert.False(t, r.IsActive)
	assert.JSONEq(t, `{">": [{"var": "product.stock_quantity"}, 5]}`, string(r.Conditions))
}

func TestParseRulePack_RejectsInvalidRules(t *testing.T) {
	tests := map[string]string{
		"bad action":   "rules:\n  - {name: x, rule_type: margin_based, action_type: teleport, action_value: 1}\n",
		"margin range": "rules:\n  - {name: x, rule_type: margin_based, action_type: set_margin, action_value: 100}\n",
		"no scope ids": "rules:\n  - {name: x, rule_type: margin_based, applies_to: brand, action_type: markup_fixed, action_value: 1}\n",
		"bad value":    "rules:\n  - {name: x, rule_type: margin_based, action_type: markup_fixed, action_value: abc}\n",
		"duplicate":    "rules:\n  - {name: x, rule_type: margin_based, action_type: markup_fixed, action_value: 1}\n  - {name: x, rule_type: margin_based, action_type: markup_fixed, action_value: 2}\n",
		"not yaml":     "rules: [",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRulePack([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestSeedRules_UpsertsByName(t *testing.T) {
	st := newMemStore()
	existing := &model.PriceAdjustmentRule{
		Name: "default markup", RuleType: "margin_based", AppliesTo: "all",
		ActionType: "markup_percent", ActionValue: d("25"), IsActive: true,
		ActionConfig: datatypes.NewJSONType(model.RuleActionConfig{}),
	}
	require.NoError(t, st.Rules().Create(context.Background(), existing))

	rules, err := ParseRulePack([]byte(samplePack))
	require.NoError(t, err)

	created, updated, err := SeedRules(context.Background(), st, rules)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, updated)

	all, err := st.Rules().List(context.Background(), dto.RuleFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	got, err := st.Rules().FindByID(context.Background(), existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "30", got.ActionValue.String())
}
