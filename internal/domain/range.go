package domain

import "github.com/shopspring/decimal"

// PriceRange is an inclusive [Lower, Higher] band of valid ladder prices for
// one side. The zero value (both bounds zero) is the "unset" sentinel and is
// distinct from a degenerate single-price range with equal non-zero bounds.
type PriceRange struct {
	Lower  decimal.Decimal
	Higher decimal.Decimal
}

// IsZero reports whether the range is the unset sentinel.
func (r PriceRange) IsZero() bool {
	return r.Lower.IsZero() && r.Higher.IsZero()
}

// Contains reports whether p falls inside the range (inclusive).
// An unset range contains nothing.
func (r PriceRange) Contains(p decimal.Decimal) bool {
	if r.IsZero() {
		return false
	}
	return p.GreaterThanOrEqual(r.Lower) && p.LessThanOrEqual(r.Higher)
}
