package pricing

import "github.com/shopspring/decimal"

type direction int

const (
	nearest direction = iota
	up
	down
)

// gridOffset is the distance below each whole dollar of the policy's price
// points: x.99 sits 0.01 below, x.95 sits 0.05 below.
func gridOffset(r Rounding) (decimal.Decimal, bool) {
	switch r {
	case RoundNearest99:
		return decimal.New(1, -2), true
	case RoundNearest95:
		return decimal.New(5, -2), true
	}
	return decimal.Zero, false
}

// ApplyRounding rounds half-up to cents, then snaps to the nearest price
// point of the policy. The result is always positive and the function is
// idempotent.
func ApplyRounding(price decimal.Decimal, r Rounding) decimal.Decimal {
	p := price.Round(2)
	snapped, ok := snap(p, r, nearest)
	if !ok {
		return p
	}
	if !snapped.IsPositive() {
		// below the first grid point: take the first one above
		snapped, _ = snap(p, r, up)
	}
	return snapped
}

// RoundUp returns the smallest price point of the policy that is >= price.
func RoundUp(price decimal.Decimal, r Rounding) decimal.Decimal {
	c := price.RoundCeil(2)
	if s, ok := snap(c, r, up); ok {
		return s
	}
	return c
}

// RoundDown returns the largest price point of the policy that is <= price.
// When no positive grid point exists below price it falls back to the cent.
func RoundDown(price decimal.Decimal, r Rounding) decimal.Decimal {
	f := price.RoundFloor(2)
	if s, ok := snap(f, r, down); ok && s.IsPositive() {
		return s
	}
	return f
}

func snap(p decimal.Decimal, r Rounding, dir direction) (decimal.Decimal, bool) {
	off, ok := gridOffset(r)
	if !ok {
		return p, false
	}
	shifted := p.Add(off)
	var whole decimal.Decimal
	switch dir {
	case up:
		whole = shifted.Ceil()
	case down:
		whole = shifted.Floor()
	default:
		whole = shifted.Round(0)
	}
	return whole.Sub(off), true
}
