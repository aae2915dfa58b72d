package ladder

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/ladderbot/internal/domain"
)

func sideSpec(side domain.Side, count int, alloc Allocation) SideSpec {
	return SideSpec{
		Side:       side,
		Spread:     Flat(d("10")),
		Increment:  Flat(d("5")),
		OrderCount: count,
		Allocation: alloc,
	}
}

func TestAllocate_NegativeFunds(t *testing.T) {
	spec := sideSpec(domain.SideBuy, 5, Allocation{Funds: d("1")})
	prices := Levels(domain.SideBuy, d("4000"), d("10"), d("5"), 5, testMarket())

	_, err := Allocate("BTC/USDT", spec, prices, d("-1"), testMarket())
	require.Error(t, err)
}

func TestAllocate_ZeroFunds(t *testing.T) {
	spec := sideSpec(domain.SideBuy, 5, Allocation{Funds: d("1")})
	prices := Levels(domain.SideBuy, d("4000"), d("10"), d("5"), 5, testMarket())

	res, err := Allocate("BTC/USDT", spec, prices, decimal.Zero, testMarket())
	require.NoError(t, err)
	assert.Empty(t, res.Intents)
	assert.Equal(t, 0, res.Depth)
}

func TestAllocate_FixedVolume_FundsBoundDepth(t *testing.T) {
	market := testMarket()
	spec := sideSpec(domain.SideBuy, 10, Allocation{VolumePerOrder: d("0.0001")})
	prices := Levels(domain.SideBuy, d("4000"), d("10"), d("5"), 10, market)

	// Cada orden cuesta ~0.4 quote: con 1 de presupuesto caben 2.
	res, err := Allocate("BTC/USDT", spec, prices, d("1"), market)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Depth)
	for _, in := range res.Intents {
		assert.True(t, in.Quantity.Equal(d("0.0001")))
	}
	assert.True(t, res.Committed.LessThanOrEqual(d("1")))
}

func TestAllocate_FixedVolume_NearestFirst(t *testing.T) {
	market := testMarket()
	spec := sideSpec(domain.SideSell, 10, Allocation{VolumePerOrder: d("0.0001")})
	prices := Levels(domain.SideSell, d("4000"), d("10"), d("5"), 10, market)

	res, err := Allocate("BTC/USDT", spec, prices, d("0.00025"), market)
	require.NoError(t, err)

	// El presupuesto base 0.00025 financia las 2 órdenes más cercanas.
	require.Equal(t, 2, res.Depth)
	assert.True(t, res.Intents[0].Price.Equal(d("4005")))
	assert.True(t, res.Intents[1].Price.Equal(d("4010")))
}

func TestAllocate_FundsSplit_BuyEqualCost(t *testing.T) {
	market := testMarket()
	spec := sideSpec(domain.SideBuy, 4, Allocation{Funds: d("200")})
	prices := Levels(domain.SideBuy, d("4000"), d("10"), d("5"), 4, market)

	res, err := Allocate("BTC/USDT", spec, prices, d("200"), market)
	require.NoError(t, err)
	require.Equal(t, 4, res.Depth)

	// Coste por nivel casi idéntico (50 menos el resto del truncado) y
	// cantidades crecientes hacia abajo porque el precio baja.
	per := d("50")
	for i, in := range res.Intents {
		cost := in.Price.Mul(in.Quantity)
		assert.True(t, per.Sub(cost).Abs().LessThan(d("0.01")), "level %d cost %s", i, cost)
		if i > 0 {
			assert.True(t, in.Quantity.GreaterThan(res.Intents[i-1].Quantity))
		}
	}
	assert.True(t, res.Committed.LessThanOrEqual(d("200")))
}

func TestAllocate_FundsSplit_SellEqualQuantity(t *testing.T) {
	market := testMarket()
	spec := sideSpec(domain.SideSell, 5, Allocation{Funds: d("0.00006")})
	prices := Levels(domain.SideSell, d("4000"), d("10"), d("5"), 25, market)

	res, err := Allocate("BTC/USDT", spec, prices, d("0.00006"), market)
	require.NoError(t, err)

	// 0.00006 / 0.000012 de mínimo = 5 niveles exactos.
	require.Equal(t, 5, res.Depth)
	for _, in := range res.Intents {
		assert.True(t, in.Quantity.Equal(d("0.000012")))
	}
	assert.True(t, res.Committed.Equal(d("0.00006")))
}

func TestAllocate_FundsSplit_DepthDegradesBelowMinimum(t *testing.T) {
	market := testMarket()
	spec := sideSpec(domain.SideSell, 25, Allocation{Funds: d("0.00003")})
	prices := Levels(domain.SideSell, d("4000"), d("10"), d("5"), 25, market)

	res, err := Allocate("BTC/USDT", spec, prices, d("0.00003"), market)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Depth)
}

func TestAllocate_FundsSplit_NothingAffordable(t *testing.T) {
	market := testMarket()
	spec := sideSpec(domain.SideSell, 25, Allocation{Funds: d("0.000001")})
	prices := Levels(domain.SideSell, d("4000"), d("10"), d("5"), 25, market)

	res, err := Allocate("BTC/USDT", spec, prices, d("0.000001"), market)
	require.NoError(t, err)
	assert.Empty(t, res.Intents)
}

func TestAllocate_NeverOverspends(t *testing.T) {
	market := testMarket()

	cases := []struct {
		name  string
		side  domain.Side
		funds string
	}{
		{"buy small", domain.SideBuy, "1"},
		{"buy large", domain.SideBuy, "1234.56"},
		{"sell small", domain.SideSell, "0.00006"},
		{"sell large", domain.SideSell, "0.789"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := sideSpec(tc.side, 25, Allocation{Funds: d(tc.funds)})
			prices := Levels(tc.side, d("4000"), d("10"), d("5"), 25, market)

			res, err := Allocate("BTC/USDT", spec, prices, d(tc.funds), market)
			require.NoError(t, err)
			assert.True(t, res.Committed.LessThanOrEqual(d(tc.funds)),
				"committed %s > funds %s", res.Committed, tc.funds)
		})
	}
}
