package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/ladderbot/internal/application/dca"
	"github.com/alejandrodnm/ladderbot/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "symbol: ETH/USDT\n"))
	require.NoError(t, err)

	assert.Equal(t, "ETH/USDT", cfg.Symbol)
	assert.Equal(t, 30*time.Second, cfg.ReconcileInterval())
	assert.Equal(t, 10*time.Second, cfg.PriceWait())
	assert.Equal(t, 15*time.Minute, cfg.TradeWindow())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, dca.TriggerSignal, cfg.RouterConfig().Mode)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestSideSpec_FlatAndFunds(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
symbol: BTC/USDT
ladder:
  spread: "10"
  increment: "5"
  buy_orders_count: 20
  sell_orders_count: 25
  buy_funds: "1"
  sell_funds: "0.00006"
`))
	require.NoError(t, err)

	buy, err := cfg.SideSpec(domain.SideBuy)
	require.NoError(t, err)
	assert.Equal(t, domain.SideBuy, buy.Side)
	assert.Equal(t, 20, buy.OrderCount)
	assert.True(t, buy.Allocation.Funds.Equal(decimal.RequireFromString("1")))
	assert.False(t, buy.Allocation.FixedVolume())

	sell, err := cfg.SideSpec(domain.SideSell)
	require.NoError(t, err)
	assert.Equal(t, 25, sell.OrderCount)
	assert.True(t, sell.Allocation.Funds.Equal(decimal.RequireFromString("0.00006")))
}

func TestSideSpec_PercentOffsetsAndVolume(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
symbol: BTC/USDT
ladder:
  spread: "0.5%"
  increment: "0.1%"
  buy_volume_per_order: "0.0001"
`))
	require.NoError(t, err)

	buy, err := cfg.SideSpec(domain.SideBuy)
	require.NoError(t, err)
	assert.True(t, buy.Allocation.FixedVolume())
	assert.False(t, buy.Spread.IsZero())
}

func TestEntryConfig_PercentAmount(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
symbol: BTC/USDT
dca:
  entry_amount: "12%"
  entry_limit_orders_price_percent: 5
  use_stop_losses: true
  stop_loss_price_percent: 10
  minutes_before_next_buy: 45
`))
	require.NoError(t, err)

	entry, err := cfg.EntryConfig()
	require.NoError(t, err)
	// 12% de 1000 disponibles.
	assert.True(t, entry.Amount.Resolve(decimal.RequireFromString("1000")).Equal(decimal.RequireFromString("120")))
	assert.True(t, entry.LimitPriceMultiplier.Equal(decimal.RequireFromString("0.05")))

	exits := cfg.ExitConfig()
	assert.True(t, exits.UseStopLoss)
	assert.True(t, exits.StopLossMultiplier.Equal(decimal.RequireFromString("0.1")))

	router := cfg.RouterConfig()
	assert.Equal(t, 45*time.Minute, router.Cooldown)
}

func TestSideSpec_InvalidDecimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
symbol: BTC/USDT
ladder:
  spread: "abc"
`))
	require.NoError(t, err)

	_, err = cfg.SideSpec(domain.SideBuy)
	require.Error(t, err)
}
