package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/jlongo78/joe-ritchey-machining/internal/apierror"
)

var (
	hundred = decimal.NewFromInt(100)
	cent    = decimal.New(1, -2)
)

// Margin returns (price - cost) / price as a percent. A non-positive price
// yields zero.
func Margin(price, cost decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	return price.Sub(cost).Div(price).Mul(hundred)
}

// MarginAmount is the absolute gross margin per unit.
func MarginAmount(price, cost decimal.Decimal) decimal.Decimal {
	return price.Sub(cost)
}

// PriceForMargin returns the price at which cost yields the given margin.
// margin must be below 100.
func PriceForMargin(cost, margin decimal.Decimal) decimal.Decimal {
	return cost.Div(decimal.NewFromInt(1).Sub(margin.Div(hundred)))
}

// ChangePercent is the relative move from old to new, zero when old is zero.
func ChangePercent(old, new decimal.Decimal) decimal.Decimal {
	if old.IsZero() {
		return decimal.Zero
	}
	return new.Sub(old).Div(old).Mul(hundred).Round(2)
}

// IsNoOp reports whether two prices differ by strictly less than one cent.
func IsNoOp(old, new decimal.Decimal) bool {
	return new.Sub(old).Abs().LessThan(cent)
}

// Validate checks 0 <= min <= max < 100 and a known rounding rule.
func (p Policy) Validate() error {
	if p.MinMargin.IsNegative() {
		return apierror.Validation("min_margin_percent must be >= 0")
	}
	if p.MinMargin.GreaterThan(p.MaxMargin) {
		return apierror.Validation("min_margin_percent (%s) exceeds max_margin_percent (%s)", p.MinMargin, p.MaxMargin)
	}
	if p.MaxMargin.GreaterThanOrEqual(hundred) {
		return apierror.Validation("max_margin_percent must be < 100")
	}
	if !p.Rounding.Valid() {
		return apierror.Validation("unknown rounding policy %q", p.Rounding)
	}
	return nil
}

// EffectivePolicy overlays per-product overrides on the global defaults.
func EffectivePolicy(defaults Policy, min, max decimal.NullDecimal, rounding *string) Policy {
	p := defaults
	if min.Valid {
		p.MinMargin = min.Decimal
	}
	if max.Valid {
		p.MaxMargin = max.Decimal
	}
	if rounding != nil && *rounding != "" {
		p.Rounding = Rounding(*rounding)
	}
	return p
}
