package pricing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/diegoholiveira/jsonlogic/v3"
	"github.com/shopspring/decimal"
)

// Facts is the data document a rule's JsonLogic conditions are evaluated
// against, e.g. {"<": [{"var": "product.stock_quantity"}, 5]}.
type Facts map[string]any

// BuildFacts exposes product attributes, the trigger cost and the clock.
func BuildFacts(state ProductState, triggerCost decimal.Decimal, now time.Time) Facts {
	var brand any
	if state.BrandID != nil {
		brand = *state.BrandID
	}
	cats := make([]any, 0, len(state.CategoryIDs))
	for _, id := range state.CategoryIDs {
		cats = append(cats, id)
	}
	return Facts{
		"product": map[string]any{
			"id":             state.ID,
			"sku":            state.SKU,
			"name":           state.Name,
			"brand_id":       brand,
			"category_ids":   cats,
			"cost":           state.Cost.InexactFloat64(),
			"retail_price":   state.RetailPrice.InexactFloat64(),
			"margin":         Margin(state.RetailPrice, state.Cost).Round(2).InexactFloat64(),
			"stock_quantity": state.StockQuantity,
		},
		"trigger_cost": triggerCost.InexactFloat64(),
		"now": map[string]any{
			"hour":    now.Hour(),
			"weekday": int(now.Weekday()),
			"day":     now.Day(),
		},
	}
}

// ValidConditions reports whether raw is empty or a well-formed JsonLogic rule.
func ValidConditions(raw []byte) bool {
	if isEmptyConditions(raw) {
		return true
	}
	if !json.Valid(raw) {
		return false
	}
	return jsonlogic.IsValid(bytes.NewReader(raw))
}

// EvalConditions evaluates raw against facts. Empty conditions always match.
func EvalConditions(raw []byte, facts Facts) (bool, error) {
	if isEmptyConditions(raw) {
		return true, nil
	}
	data, err := json.Marshal(facts)
	if err != nil {
		return false, err
	}
	var out bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(raw), bytes.NewReader(data), &out); err != nil {
		return false, fmt.Errorf("evaluate conditions: %w", err)
	}
	var res any
	if out.Len() == 0 {
		return false, nil
	}
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		return false, fmt.Errorf("decode conditions result: %w", err)
	}
	return truthy(res), nil
}

func isEmptyConditions(raw []byte) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null")) || bytes.Equal(t, []byte("{}"))
}

// truthy follows JsonLogic's notion of truth.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	default:
		return true
	}
}
