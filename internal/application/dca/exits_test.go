package dca

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/ladderbot/internal/application/engine"
	"github.com/alejandrodnm/ladderbot/internal/domain"
)

func testEntry(qty string) domain.LiveOrder {
	return domain.LiveOrder{
		ID:       "entry-1",
		Symbol:   "BTC/USDT",
		Side:     domain.SideBuy,
		Type:     domain.TypeBuyLimit,
		Price:    d("4000"),
		Quantity: d(qty),
		Status:   domain.StatusOpen,
	}
}

func exitCfg() ExitConfig {
	return ExitConfig{
		UseStopLoss:          true,
		StopLossMultiplier:   d("0.1"),
		UseTakeProfit:        true,
		TakeProfitMultiplier: d("0.05"),
	}
}

func TestExitBuilder_NoneConfigured(t *testing.T) {
	b := NewExitBuilder(ExitConfig{}, engine.NewGroupRegistry())

	orders, groups := b.Build(testEntry("0.01"), splitMarket())
	assert.Empty(t, orders)
	assert.Empty(t, groups)
}

func TestExitBuilder_StopOnly(t *testing.T) {
	cfg := exitCfg()
	cfg.UseTakeProfit = false
	b := NewExitBuilder(cfg, engine.NewGroupRegistry())

	orders, groups := b.Build(testEntry("0.01"), splitMarket())

	require.Len(t, orders, 1)
	assert.Empty(t, groups)
	assert.Equal(t, domain.TypeStopLoss, orders[0].Type)
	assert.Equal(t, domain.SideSell, orders[0].Side)
	assert.True(t, orders[0].Price.Equal(d("3600")), "stop at entry*(1-0.1), got %s", orders[0].Price)
	assert.True(t, orders[0].Quantity.Equal(d("0.01")))
	assert.Empty(t, orders[0].GroupID, "single leg must not be grouped")
	assert.Equal(t, "entry-1", orders[0].TriggeredBy)
}

func TestExitBuilder_TakeProfitOnly(t *testing.T) {
	cfg := exitCfg()
	cfg.UseStopLoss = false
	b := NewExitBuilder(cfg, engine.NewGroupRegistry())

	orders, groups := b.Build(testEntry("0.01"), splitMarket())

	require.Len(t, orders, 1)
	assert.Empty(t, groups)
	assert.Equal(t, domain.TypeSellLimit, orders[0].Type)
	assert.True(t, orders[0].Price.Equal(d("4200")), "tp at entry*(1+0.05), got %s", orders[0].Price)
	assert.Empty(t, orders[0].GroupID)
}

func TestExitBuilder_BothFormOCOPair(t *testing.T) {
	reg := engine.NewGroupRegistry()
	b := NewExitBuilder(exitCfg(), reg)

	orders, groups := b.Build(testEntry("0.01"), splitMarket())

	require.Len(t, orders, 2)
	require.Len(t, groups, 1)

	stop, tp := orders[0], orders[1]
	assert.Equal(t, domain.TypeStopLoss, stop.Type)
	assert.Equal(t, domain.TypeSellLimit, tp.Type)
	assert.Equal(t, groups[0].ID, stop.GroupID)
	assert.Equal(t, groups[0].ID, tp.GroupID)

	// Ambos legs suman la cantidad completa de la entrada.
	assert.True(t, stop.Quantity.Equal(d("0.01")))
	assert.True(t, tp.Quantity.Equal(d("0.01")))

	require.NotNil(t, reg.GroupOf(stop.ID))
	assert.Equal(t, []string{tp.ID}, reg.GroupOf(stop.ID).Siblings(stop.ID))
}

func TestExitBuilder_SecondaryTranches(t *testing.T) {
	cfg := exitCfg()
	cfg.UseSecondaryExits = true
	cfg.SecondaryExitCount = 2
	cfg.SecondaryExitMultiplier = d("0.02")
	b := NewExitBuilder(cfg, engine.NewGroupRegistry())

	orders, groups := b.Build(testEntry("0.3"), splitMarket())

	// K+1 = 3 pares stop/TP.
	require.Len(t, orders, 6)
	require.Len(t, groups, 3)

	stopSum, tpSum := decimal.Zero, decimal.Zero
	var lastTP decimal.Decimal
	for i := 0; i < len(orders); i += 2 {
		stop, tp := orders[i], orders[i+1]

		// Todos los stops al mismo precio de disparo.
		assert.True(t, stop.Price.Equal(d("3600")), "stop %d at %s", i/2, stop.Price)
		// Los TP escalan estrictamente hacia arriba.
		if i > 0 {
			assert.True(t, tp.Price.GreaterThan(lastTP), "tp %d %s <= previous %s", i/2, tp.Price, lastTP)
		}
		lastTP = tp.Price

		assert.Equal(t, groups[i/2].ID, stop.GroupID)
		assert.Equal(t, groups[i/2].ID, tp.GroupID)
		stopSum = stopSum.Add(stop.Quantity)
		tpSum = tpSum.Add(tp.Quantity)
	}

	assert.True(t, stopSum.Equal(d("0.3")), "stop quantities sum %s", stopSum)
	assert.True(t, tpSum.Equal(d("0.3")), "tp quantities sum %s", tpSum)

	// 4000*(1+0.05), *(1+0.07), *(1+0.09)
	assert.True(t, orders[1].Price.Equal(d("4200")))
	assert.True(t, orders[3].Price.Equal(d("4280")))
	assert.True(t, orders[5].Price.Equal(d("4360")))
}

func TestExitBuilder_SecondaryCountIgnoredWhenDisabled(t *testing.T) {
	cfg := exitCfg()
	cfg.UseSecondaryExits = false
	cfg.SecondaryExitCount = 5
	b := NewExitBuilder(cfg, engine.NewGroupRegistry())

	orders, groups := b.Build(testEntry("0.3"), splitMarket())

	assert.Len(t, orders, 2, "disabled secondaries must yield exactly one pair")
	assert.Len(t, groups, 1)
}

func TestExitBuilder_TranchesDegradeWithTinyQuantity(t *testing.T) {
	cfg := exitCfg()
	cfg.UseSecondaryExits = true
	cfg.SecondaryExitCount = 2
	b := NewExitBuilder(cfg, engine.NewGroupRegistry())

	// 0.0001/3 cae bajo el mínimo: degrada a un único par.
	orders, groups := b.Build(testEntry("0.0001"), splitMarket())

	assert.Len(t, orders, 2)
	assert.Len(t, groups, 1)
}

func TestExitBuilder_NothingWhenBelowMinimum(t *testing.T) {
	b := NewExitBuilder(exitCfg(), engine.NewGroupRegistry())

	orders, groups := b.Build(testEntry("0.000001"), splitMarket())
	assert.Empty(t, orders)
	assert.Empty(t, groups)
}

func TestExitBuilder_ZeroSecondaryMultiplierCollapsesToOnePair(t *testing.T) {
	cfg := exitCfg()
	cfg.UseSecondaryExits = true
	cfg.SecondaryExitCount = 3
	cfg.SecondaryExitMultiplier = decimal.Zero

	orders, groups := NewExitBuilder(cfg, engine.NewGroupRegistry()).Build(testEntry("0.3"), splitMarket())

	// Sin multiplicador los TP secundarios no pueden escalar hacia arriba:
	// mejor un único par que tres TP al mismo precio.
	require.Len(t, orders, 2)
	require.Len(t, groups, 1)
	assert.True(t, orders[1].Price.Equal(d("4200")))
	assert.True(t, orders[0].Quantity.Equal(d("0.3")))
}
