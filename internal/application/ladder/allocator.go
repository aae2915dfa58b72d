package ladder

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ladderbot/internal/domain"
)

// AllocationResult contains the funded portion of a side's ladder.
type AllocationResult struct {
	Intents []domain.OrderIntent
	// Depth is the operational depth: levels actually funded. May be smaller
	// than the configured order count when funds run out.
	Depth int
	// Committed is the total balance the intents reserve (quote for buys,
	// base for sells). Never exceeds the funds passed in.
	Committed decimal.Decimal
}

// Allocate assigns quantities to the given level prices, nearest the
// reference price first, stopping when funds or levels run out.
//
// In fixed-volume mode the quantity is constant and funds bound how many
// levels are creatable. In funds-split mode the budget is split equally
// across the deepest count the market minimums allow. Either way no intent
// is emitted below the market minimum and the total committed never exceeds
// funds — conservative underspend from truncation is tolerated, overspend
// never.
func Allocate(symbol string, spec SideSpec, prices []decimal.Decimal, funds decimal.Decimal, market domain.MarketStatus) (AllocationResult, error) {
	if funds.IsNegative() {
		return AllocationResult{}, fmt.Errorf("ladder.Allocate: negative funds %s for %s %s", funds, symbol, spec.Side)
	}
	if len(prices) == 0 || funds.IsZero() {
		return AllocationResult{}, nil
	}

	if spec.Allocation.FixedVolume() {
		return allocateFixedVolume(symbol, spec, prices, funds, market), nil
	}
	return allocateFundsSplit(symbol, spec, prices, funds, market), nil
}

// allocateFixedVolume walks outward with a constant quantity per order until
// the configured count or the funds are exhausted, whichever first.
func allocateFixedVolume(symbol string, spec SideSpec, prices []decimal.Decimal, funds decimal.Decimal, market domain.MarketStatus) AllocationResult {
	var res AllocationResult
	qty := market.TruncateQuantity(spec.Allocation.VolumePerOrder)
	remaining := funds

	for _, price := range prices {
		if !market.ValidOrder(price, qty) {
			continue
		}
		cost := orderCost(spec.Side, price, qty)
		if cost.GreaterThan(remaining) {
			break
		}
		res.Intents = append(res.Intents, intent(symbol, spec.Side, price, qty))
		res.Committed = res.Committed.Add(cost)
		remaining = remaining.Sub(cost)
	}
	res.Depth = len(res.Intents)
	return res
}

// allocateFundsSplit splits the budget equally across as many of the nearest
// levels as the market minimums allow.
func allocateFundsSplit(symbol string, spec SideSpec, prices []decimal.Decimal, funds decimal.Decimal, market domain.MarketStatus) AllocationResult {
	var res AllocationResult

	depth := len(prices)
	if min := minOrderCost(spec.Side, prices[0], market); min.IsPositive() {
		affordable := int(funds.Div(min).Floor().IntPart())
		if affordable < depth {
			depth = affordable
		}
	}
	if depth <= 0 {
		return res
	}

	per := funds.Div(decimal.NewFromInt(int64(depth)))
	remaining := funds

	for _, price := range prices[:depth] {
		qty := per
		if spec.Side == domain.SideBuy {
			qty = per.Div(price)
		}
		qty = market.TruncateQuantity(qty)
		if !market.ValidOrder(price, qty) {
			continue
		}
		cost := orderCost(spec.Side, price, qty)
		if cost.GreaterThan(remaining) {
			break
		}
		res.Intents = append(res.Intents, intent(symbol, spec.Side, price, qty))
		res.Committed = res.Committed.Add(cost)
		remaining = remaining.Sub(cost)
	}
	res.Depth = len(res.Intents)
	return res
}

// minOrderCost es el coste mínimo de una orden válida al precio más cercano
// a la referencia: quote para compras, base para ventas.
func minOrderCost(side domain.Side, innermost decimal.Decimal, market domain.MarketStatus) decimal.Decimal {
	if side == domain.SideBuy {
		min := market.MinNotional
		if qtyCost := market.MinQuantity.Mul(innermost); qtyCost.GreaterThan(min) {
			min = qtyCost
		}
		return min
	}
	min := market.MinQuantity
	if market.MinNotional.IsPositive() && innermost.IsPositive() {
		if notionalQty := market.MinNotional.Div(innermost); notionalQty.GreaterThan(min) {
			min = notionalQty
		}
	}
	return min
}

func orderCost(side domain.Side, price, qty decimal.Decimal) decimal.Decimal {
	if side == domain.SideBuy {
		return price.Mul(qty)
	}
	return qty
}

func intent(symbol string, side domain.Side, price, qty decimal.Decimal) domain.OrderIntent {
	typ := domain.TypeBuyLimit
	if side == domain.SideSell {
		typ = domain.TypeSellLimit
	}
	return domain.OrderIntent{
		Symbol:   symbol,
		Side:     side,
		Type:     typ,
		Price:    price,
		Quantity: qty,
	}
}
