package dca

import (
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ladderbot/internal/domain"
)

// Suborder is one slice of a split entry quantity. Index starts at 1.
type Suborder struct {
	Index    int
	Quantity decimal.Decimal
}

// Split divides a total entry quantity into count equal suborders, honoring
// the market's minimum quantity and minimum notional at the given price.
//
// When the per-suborder quantity falls below the market minimum, count is
// decremented until a valid count >= 1 is found; if even a single order fails
// the minimum, no suborders are returned rather than an invalid order. The
// degradation is deterministic and never changes the total quantity traded:
// any truncation residue from the market's quantity precision is carried by
// the last suborder so the quantities sum to total exactly.
func Split(total decimal.Decimal, count int, price decimal.Decimal, market domain.MarketStatus) []Suborder {
	if !total.IsPositive() || count < 1 {
		return nil
	}

	for n := count; n >= 1; n-- {
		nDec := decimal.NewFromInt(int64(n))
		per := market.TruncateQuantity(total.Div(nDec))
		last := total.Sub(per.Mul(nDec.Sub(decimal.NewFromInt(1))))

		if !per.IsPositive() || !market.ValidOrder(price, per) || !market.ValidOrder(price, last) {
			continue
		}

		out := make([]Suborder, n)
		for i := 0; i < n-1; i++ {
			out[i] = Suborder{Index: i + 1, Quantity: per}
		}
		out[n-1] = Suborder{Index: n, Quantity: last}
		return out
	}
	return nil
}
