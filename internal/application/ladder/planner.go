package ladder

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ladderbot/internal/domain"
)

// Plan is the full target ladder for one side: the ordered intent sequence,
// closest-to-reference first, plus the price band they live in.
type Plan struct {
	Side    domain.Side
	Bounds  domain.PriceRange
	Intents []domain.OrderIntent
	Depth   int
}

// Planner composes the range calculator and the funds allocator for one side.
// It holds the offset resolver so flat values stay cached across cycles.
type Planner struct {
	symbol   string
	resolver *Resolver
}

// NewPlanner crea un Planner para un lado del ladder.
func NewPlanner(symbol string, spec SideSpec) *Planner {
	return &Planner{symbol: symbol, resolver: NewResolver(spec)}
}

// Invalidate fuerza a recalcular los offsets flat en el próximo Plan.
func (p *Planner) Invalidate() {
	p.resolver.Invalidate()
}

// Offsets returns the side's flat spread and increment, resolving them at the
// given reference price if no planning pass has cached them yet.
func (p *Planner) Offsets(ref decimal.Decimal, market domain.MarketStatus) (spread, increment decimal.Decimal) {
	return p.resolver.Resolve(ref, market)
}

// Plan builds the target ladder at the given reference price, bounded by the
// available funds. Guarantees: adjacent intents are spaced by exactly the
// increment, the innermost sits at ref ± spread/2, and the committed total
// never exceeds funds.
func (p *Planner) Plan(ref, funds decimal.Decimal, market domain.MarketStatus) (Plan, error) {
	spec := p.resolver.Spec()
	out := Plan{Side: spec.Side}

	if !ref.IsPositive() {
		return out, fmt.Errorf("ladder.Plan: non-positive reference price %s for %s", ref, p.symbol)
	}

	spread, increment := p.resolver.Resolve(ref, market)
	if spread.IsNegative() || increment.IsNegative() {
		return out, fmt.Errorf("ladder.Plan: negative spread/increment for %s", p.symbol)
	}

	out.Bounds = Range(spec.Side, ref, spread, increment, spec.OrderCount, market)
	if out.Bounds.IsZero() {
		return out, nil
	}

	prices := Levels(spec.Side, ref, spread, increment, spec.OrderCount, market)
	alloc, err := Allocate(p.symbol, spec, prices, funds, market)
	if err != nil {
		return out, err
	}

	out.Intents = alloc.Intents
	out.Depth = alloc.Depth
	return out, nil
}
