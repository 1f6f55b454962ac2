package types

import "github.com/shopspring/decimal"

// Places is the number of decimal places used for resolved values and
// distributed amounts.
const Places = 2

// noisePlaces bounds the digits directed rounding looks at. Divisions
// carry 16 digits, so their last-digit error must not move a value a cent.
const noisePlaces = 12

var hundred = decimal.NewFromInt(100)

// RoundUp quantizes d to Places, rounding toward positive infinity.
// Resolved values never undervalue a resource.
func RoundUp(d decimal.Decimal) decimal.Decimal {
	return d.Round(noisePlaces).RoundCeil(Places)
}

// RoundCents quantizes d to Places, rounding half away from zero.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// FloorCents quantizes d to Places, rounding toward negative infinity.
func FloorCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(noisePlaces).RoundFloor(Places)
}

// Div divides a by b. A zero divisor yields zero and false instead of panicking.
func Div(a, b decimal.Decimal) (decimal.Decimal, bool) {
	if b.IsZero() {
		return decimal.Zero, false
	}
	return a.Div(b), true
}

// Percent converts a 0..100 percentage into a fraction.
func Percent(p decimal.Decimal) decimal.Decimal {
	return p.Div(hundred)
}

// MinDecimal returns the smaller of a and b.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Clamp bounds d to [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}
