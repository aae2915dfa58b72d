package ladder

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/ladderbot/internal/domain"
)

func TestPlanner_ReferenceScenario(t *testing.T) {
	// Referencia 4000, spread 10, incremento 5: con 1 quote para compras y
	// 0.00006 base para ventas salen exactamente 20 y 5 niveles.
	market := testMarket()

	buy := NewPlanner("BTC/USDT", sideSpec(domain.SideBuy, 20, Allocation{Funds: d("1")}))
	sell := NewPlanner("BTC/USDT", sideSpec(domain.SideSell, 25, Allocation{Funds: d("0.00006")}))

	buyPlan, err := buy.Plan(d("4000"), d("1"), market)
	require.NoError(t, err)
	sellPlan, err := sell.Plan(d("4000"), d("0.00006"), market)
	require.NoError(t, err)

	assert.Equal(t, 20, buyPlan.Depth)
	assert.Equal(t, 5, sellPlan.Depth)

	require.NotEmpty(t, buyPlan.Intents)
	require.NotEmpty(t, sellPlan.Intents)
	assert.True(t, buyPlan.Intents[0].Price.LessThanOrEqual(d("3995")),
		"nearest buy %s above 4000-5", buyPlan.Intents[0].Price)
	assert.True(t, sellPlan.Intents[0].Price.GreaterThanOrEqual(d("4005")),
		"nearest sell %s below 4000+5", sellPlan.Intents[0].Price)
}

func TestPlanner_AdjacentSpacing(t *testing.T) {
	market := testMarket()
	p := NewPlanner("BTC/USDT", sideSpec(domain.SideBuy, 20, Allocation{Funds: d("1")}))

	plan, err := p.Plan(d("4000"), d("1"), market)
	require.NoError(t, err)
	require.Greater(t, len(plan.Intents), 1)

	for i := 1; i < len(plan.Intents); i++ {
		gap := plan.Intents[i].Price.Sub(plan.Intents[i-1].Price).Abs()
		assert.True(t, gap.Equal(d("5")), "gap %s at level %d", gap, i)
	}
}

func TestPlanner_IntentsInsideBounds(t *testing.T) {
	market := testMarket()
	p := NewPlanner("BTC/USDT", sideSpec(domain.SideSell, 25, Allocation{Funds: d("0.001")}))

	plan, err := p.Plan(d("4000"), d("0.001"), market)
	require.NoError(t, err)
	require.NotEmpty(t, plan.Intents)

	for _, in := range plan.Intents {
		assert.True(t, plan.Bounds.Contains(in.Price),
			"intent %s outside [%s, %s]", in.Price, plan.Bounds.Lower, plan.Bounds.Higher)
	}
}

func TestPlanner_NonPositiveReference(t *testing.T) {
	p := NewPlanner("BTC/USDT", sideSpec(domain.SideBuy, 5, Allocation{Funds: d("1")}))

	_, err := p.Plan(decimal.Zero, d("1"), testMarket())
	require.Error(t, err)
}

func TestPlanner_FullyClampedBuyRange(t *testing.T) {
	p := NewPlanner("BTC/USDT", sideSpec(domain.SideBuy, 5, Allocation{Funds: d("1")}))

	// Spread mayor que 2P: no hay rango de compra, plan vacío sin error.
	plan, err := p.Plan(d("1"), d("1"), domain.MarketStatus{
		Symbol:            "BTC/USDT",
		MinQuantity:       d("0.000012"),
		MinNotional:       d("0.045"),
		PricePrecision:    2,
		QuantityPrecision: 8,
	})
	require.NoError(t, err)
	assert.True(t, plan.Bounds.IsZero())
	assert.Empty(t, plan.Intents)
}

func TestPlanner_PercentOffsetsCachedUntilInvalidate(t *testing.T) {
	market := testMarket()
	spec := SideSpec{
		Side:       domain.SideSell,
		Spread:     Percent(d("0.005")),
		Increment:  Percent(d("0.001")),
		OrderCount: 3,
		Allocation: Allocation{Funds: d("0.01")},
	}
	p := NewPlanner("BTC/USDT", spec)

	first, err := p.Plan(d("4000"), d("0.01"), market)
	require.NoError(t, err)
	require.NotEmpty(t, first.Intents)

	// El precio deriva pero los offsets flat quedan cacheados: mismos gaps.
	second, err := p.Plan(d("4000.37"), d("0.01"), market)
	require.NoError(t, err)
	require.NotEmpty(t, second.Intents)

	gapFirst := first.Intents[1].Price.Sub(first.Intents[0].Price)
	gapSecond := second.Intents[1].Price.Sub(second.Intents[0].Price)
	assert.True(t, gapFirst.Equal(gapSecond))

	p.Invalidate()
	spread, increment := p.Offsets(d("5000"), market)
	assert.True(t, spread.Equal(d("25")), "re-resolved spread %s", spread)
	assert.True(t, increment.Equal(d("5")))
}
