package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/jlongo78/joe-ritchey-machining/internal/apierror"
)

// ErrNoCompetitorPrice is returned for a match_competitor action when no
// recent competitor observation exists. Callers treat it as "no automatic
// adjustment".
var ErrNoCompetitorPrice = errors.New("no recent competitor price")

// Calculate turns a trigger cost and a rule action into a margin-compliant,
// rounded retail price for state.
//
//  1. candidate from the action
//  2. half-up to cents, then the rounding policy
//  3. clamp into [min, max] margin, rounding toward the inside of the window
//  4. no-op when the result is within one cent of the stored price
//
// competitor is only read by match_competitor.
func Calculate(state ProductState, cost decimal.Decimal, action Action, competitor decimal.NullDecimal) (Quote, error) {
	if !cost.IsPositive() {
		return Quote{}, apierror.Validation("cost must be > 0 (product %d)", state.ID)
	}
	pol := state.Policy
	if err := pol.Validate(); err != nil {
		return Quote{}, err
	}

	candidate, err := candidatePrice(state, cost, action, competitor)
	if err != nil {
		return Quote{}, err
	}
	if !candidate.IsPositive() {
		return Quote{}, apierror.Validation("computed price must be > 0 (product %d)", state.ID)
	}

	price := ApplyRounding(candidate, pol.Rounding)
	price, clamp := clampToWindow(price, cost, pol)

	q := Quote{
		Cost:          cost,
		OldPrice:      state.RetailPrice,
		Candidate:     candidate.Round(2),
		Price:         price,
		Margin:        Margin(price, cost).Round(2),
		ChangePercent: ChangePercent(state.RetailPrice, price),
		Clamp:         clamp,
	}
	q.NoOp = IsNoOp(state.RetailPrice, price)
	return q, nil
}

func candidatePrice(state ProductState, cost decimal.Decimal, a Action, competitor decimal.NullDecimal) (decimal.Decimal, error) {
	v := a.Value
	one := decimal.NewFromInt(1)
	switch a.Type {
	case ActionSetMargin:
		if v.IsNegative() || v.GreaterThanOrEqual(hundred) {
			return decimal.Zero, apierror.Validation("set_margin value must be in [0, 100)")
		}
		return PriceForMargin(cost, v), nil
	case ActionMarkupPercent:
		return cost.Mul(one.Add(v.Div(hundred))), nil
	case ActionMarkupFixed:
		return cost.Add(v), nil
	case ActionMatchCompetitor:
		if !competitor.Valid || !competitor.Decimal.IsPositive() {
			return decimal.Zero, ErrNoCompetitorPrice
		}
		if a.OffsetType == OffsetFixed {
			return competitor.Decimal.Add(v), nil
		}
		return competitor.Decimal.Mul(one.Add(v.Div(hundred))), nil
	case ActionApplyDiscount:
		return state.RetailPrice.Mul(one.Sub(v.Div(hundred))), nil
	default:
		return decimal.Zero, apierror.Validation("unknown action_type %q", a.Type)
	}
}

// clampToWindow moves price into the margin window. A price under the minimum
// goes up to the next grid point, a price over the maximum down to the
// previous one. If the grid point overshoots the opposite bound the plain
// cent is used instead.
func clampToWindow(price, cost decimal.Decimal, pol Policy) (decimal.Decimal, Clamp) {
	m := Margin(price, cost)
	switch {
	case m.LessThan(pol.MinMargin):
		target := PriceForMargin(cost, pol.MinMargin)
		p := RoundUp(target, pol.Rounding)
		if Margin(p, cost).GreaterThan(pol.MaxMargin) {
			p = target.RoundCeil(2)
		}
		return p, ClampMin
	case m.GreaterThan(pol.MaxMargin):
		target := PriceForMargin(cost, pol.MaxMargin)
		p := RoundDown(target, pol.Rounding)
		if Margin(p, cost).LessThan(pol.MinMargin) {
			p = target.RoundFloor(2)
		}
		return p, ClampMax
	}
	return price, ClampNone
}

// BulkAdjustment is an operator-driven price change that bypasses rules and
// margin bounds.
type BulkAdjustment struct {
	Type          string // percentage | fixed | set | set_margin
	Value         decimal.Decimal
	ApplyRounding bool
}

// Bulk adjustment types.
const (
	BulkPercentage = "percentage"
	BulkFixed      = "fixed"
	BulkSet        = "set"
	BulkSetMargin  = "set_margin"
)

// ValidBulkType reports whether t is a known bulk adjustment type.
func ValidBulkType(t string) bool {
	switch t {
	case BulkPercentage, BulkFixed, BulkSet, BulkSetMargin:
		return true
	}
	return false
}

// ComputeBulkPrice is shared by bulk preview and bulk apply so both produce
// the same numbers.
func ComputeBulkPrice(state ProductState, adj BulkAdjustment) (decimal.Decimal, error) {
	old := state.RetailPrice
	var p decimal.Decimal
	switch adj.Type {
	case BulkPercentage:
		p = old.Add(old.Mul(adj.Value.Div(hundred)))
	case BulkFixed:
		p = old.Add(adj.Value)
	case BulkSet:
		p = adj.Value
	case BulkSetMargin:
		if adj.Value.IsNegative() || adj.Value.GreaterThanOrEqual(hundred) {
			return decimal.Zero, apierror.Validation("set_margin value must be in [0, 100)")
		}
		if !state.Cost.IsPositive() {
			return decimal.Zero, apierror.Validation("cost must be > 0 (product %d)", state.ID)
		}
		p = PriceForMargin(state.Cost, adj.Value)
	default:
		return decimal.Zero, apierror.Validation("unknown adjustment_type %q", adj.Type)
	}
	p = p.Round(2)
	if !p.IsPositive() {
		return decimal.Zero, apierror.Validation("new price must be > 0")
	}
	if adj.ApplyRounding {
		p = ApplyRounding(p, state.Policy.Rounding)
	}
	return p, nil
}
