package ladder

import (
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ladderbot/internal/domain"
)

// Offset is a spread or increment expressed either as a flat price delta or as
// a fraction of the reference price. The union is resolved once per planning
// pass, never re-branched inside the level loops.
type Offset struct {
	value   decimal.Decimal
	percent bool
}

// Flat builds an absolute price offset.
func Flat(v decimal.Decimal) Offset {
	return Offset{value: v}
}

// Percent builds an offset relative to the reference price (0.05 = 5%).
func Percent(v decimal.Decimal) Offset {
	return Offset{value: v, percent: true}
}

// IsZero reports whether the offset is unset.
func (o Offset) IsZero() bool {
	return o.value.IsZero()
}

// resolve converts the offset to a flat value at the given reference price,
// rounded to the market's price precision when relative.
func (o Offset) resolve(ref decimal.Decimal, market domain.MarketStatus) decimal.Decimal {
	if !o.percent {
		return o.value
	}
	return market.RoundPrice(ref.Mul(o.value))
}

// Allocation selects how per-order quantities are derived. Exactly one of
// Funds or VolumePerOrder is active: a positive VolumePerOrder wins.
//
// Funds are quote-denominated on the buy side and base-denominated on the
// sell side; VolumePerOrder is always a base quantity.
type Allocation struct {
	Funds          decimal.Decimal
	VolumePerOrder decimal.Decimal
}

// FixedVolume reports whether the fixed volume-per-order mode is active.
func (a Allocation) FixedVolume() bool {
	return a.VolumePerOrder.IsPositive()
}

// SideSpec is the configured ladder shape for one side of the book.
type SideSpec struct {
	Side       domain.Side
	Spread     Offset
	Increment  Offset
	OrderCount int
	Allocation Allocation
}

// Resolver caches the flat spread/increment of a SideSpec so that subsequent
// cycles stay stable even if the reference price drifts slightly. The cache
// is recomputed only through Invalidate.
type Resolver struct {
	spec SideSpec

	flatSpread    decimal.Decimal
	flatIncrement decimal.Decimal
	resolved      bool
}

// NewResolver wraps the SideSpec for repeated planning passes.
func NewResolver(spec SideSpec) *Resolver {
	return &Resolver{spec: spec}
}

// Spec devuelve la spec original sin resolver.
func (r *Resolver) Spec() SideSpec {
	return r.spec
}

// Resolve returns the flat spread and increment for the given reference
// price, computing and caching them on first use.
func (r *Resolver) Resolve(ref decimal.Decimal, market domain.MarketStatus) (spread, increment decimal.Decimal) {
	if !r.resolved {
		r.flatSpread = r.spec.Spread.resolve(ref, market)
		r.flatIncrement = r.spec.Increment.resolve(ref, market)
		r.resolved = true
	}
	return r.flatSpread, r.flatIncrement
}

// Invalidate drops the cached flat values so the next Resolve recomputes them.
func (r *Resolver) Invalidate() {
	r.resolved = false
}
