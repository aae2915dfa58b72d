package ladder

import (
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ladderbot/internal/domain"
)

var two = decimal.NewFromInt(2)

// Range computes the allowed price band for one side of the ladder.
//
// Sell side: lower = P + S/2, higher = P + S/2 + I*(N-1).
// Buy side:  higher = P - S/2, lower = P - S/2 - I*(N-1), clamped at zero.
// The innermost bound is rounded to the market price precision so the bounds
// always contain the level prices produced by Levels. A fully-clamped buy
// range (higher <= 0) is returned as the zero sentinel, meaning "no valid
// buy price" rather than an error.
func Range(side domain.Side, ref, spread, increment decimal.Decimal, count int, market domain.MarketStatus) domain.PriceRange {
	if count <= 0 {
		return domain.PriceRange{}
	}
	half := spread.Div(two)
	span := increment.Mul(decimal.NewFromInt(int64(count - 1)))

	if side == domain.SideSell {
		lower := market.RoundPrice(ref.Add(half))
		return domain.PriceRange{Lower: lower, Higher: lower.Add(span)}
	}

	higher := market.RoundPrice(ref.Sub(half))
	if !higher.IsPositive() {
		return domain.PriceRange{}
	}
	lower := higher.Sub(span)
	if lower.IsNegative() {
		lower = decimal.Zero
	}
	return domain.PriceRange{Lower: lower, Higher: higher}
}

// Levels returns the ladder level prices for one side, closest to the
// reference price first. The innermost level sits at ref ± spread/2 rounded
// to the market precision; the rest step away by exactly the increment, so
// the adjacent-spacing invariant holds in exact decimal arithmetic.
//
// Buy levels that would be zero or negative are dropped, shortening the list.
func Levels(side domain.Side, ref, spread, increment decimal.Decimal, count int, market domain.MarketStatus) []decimal.Decimal {
	if count <= 0 {
		return nil
	}
	innermost := market.RoundPrice(ref.Add(spread.Div(two)))
	if side == domain.SideBuy {
		innermost = market.RoundPrice(ref.Sub(spread.Div(two)))
	}

	prices := make([]decimal.Decimal, 0, count)
	p := innermost
	for k := 0; k < count; k++ {
		if side == domain.SideBuy && !p.IsPositive() {
			break
		}
		prices = append(prices, p)
		if side == domain.SideSell {
			p = p.Add(increment)
		} else {
			p = p.Sub(increment)
		}
	}
	return prices
}
