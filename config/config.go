package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/ladderbot/internal/application/dca"
	"github.com/alejandrodnm/ladderbot/internal/application/ladder"
	"github.com/alejandrodnm/ladderbot/internal/domain"
)

// Config es la configuración completa del bot.
type Config struct {
	Symbol  string        `yaml:"symbol"`
	Ladder  LadderConfig  `yaml:"ladder"`
	DCA     DCAConfig     `yaml:"dca"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// LadderConfig controla el grid de órdenes staggered.
//
// spread/increment admiten dos formas: valor flat en quote, o porcentaje del
// precio de referencia (p.ej. "0.5%"). buy_funds/sell_funds reparten un
// presupuesto total; *_volume_per_order fija la cantidad por orden y tiene
// prioridad si ambos están presentes.
type LadderConfig struct {
	Spread    string `yaml:"spread"`
	Increment string `yaml:"increment"`

	BuyOrdersCount  int `yaml:"buy_orders_count"`
	SellOrdersCount int `yaml:"sell_orders_count"`

	BuyFunds           string `yaml:"buy_funds"`
	SellFunds          string `yaml:"sell_funds"`
	BuyVolumePerOrder  string `yaml:"buy_volume_per_order"`
	SellVolumePerOrder string `yaml:"sell_volume_per_order"`

	IntervalSeconds    int `yaml:"interval_seconds"`
	PriceWaitSeconds   int `yaml:"price_wait_seconds"`
	TradeWindowMinutes int `yaml:"trade_window_minutes"`
}

// DCAConfig controla las entradas DCA y sus exits encadenados.
// Los *_percent son porcentajes (5 = 5%).
type DCAConfig struct {
	TriggerMode     string `yaml:"trigger_mode"` // signal | periodic
	IntervalMinutes int    `yaml:"interval_minutes"`
	EntryAmount     string `yaml:"entry_amount"` // "0.2" o "12%" del disponible

	EntryLimitOrdersPricePercent float64 `yaml:"entry_limit_orders_price_percent"`
	UseMarketEntryOrders         bool    `yaml:"use_market_entry_orders"`

	UseSecondaryEntryOrders          bool    `yaml:"use_secondary_entry_orders"`
	SecondaryEntryOrdersCount        int     `yaml:"secondary_entry_orders_count"`
	SecondaryEntryOrdersAmount       string  `yaml:"secondary_entry_orders_amount"`
	SecondaryEntryOrdersPricePercent float64 `yaml:"secondary_entry_orders_price_percent"`

	UseStopLosses        bool    `yaml:"use_stop_losses"`
	StopLossPricePercent float64 `yaml:"stop_loss_price_percent"`

	UseTakeProfitExitOrders     bool    `yaml:"use_take_profit_exit_orders"`
	ExitLimitOrdersPricePercent float64 `yaml:"exit_limit_orders_price_percent"`

	UseSecondaryExitOrders          bool    `yaml:"use_secondary_exit_orders"`
	SecondaryExitOrdersCount        int     `yaml:"secondary_exit_orders_count"`
	SecondaryExitOrdersPricePercent float64 `yaml:"secondary_exit_orders_price_percent"`

	MinutesBeforeNextBuy int `yaml:"minutes_before_next_buy"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// ReconcileInterval devuelve el intervalo de reconciliación como time.Duration.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Ladder.IntervalSeconds) * time.Second
}

// PriceWait devuelve el timeout de espera de precio.
func (c *Config) PriceWait() time.Duration {
	return time.Duration(c.Ladder.PriceWaitSeconds) * time.Second
}

// TradeWindow devuelve la ventana de trades recientes.
func (c *Config) TradeWindow() time.Duration {
	return time.Duration(c.Ladder.TradeWindowMinutes) * time.Minute
}

// SideSpec materializa la spec del ladder para un lado.
func (c *Config) SideSpec(side domain.Side) (ladder.SideSpec, error) {
	spread, err := parseOffset(c.Ladder.Spread)
	if err != nil {
		return ladder.SideSpec{}, fmt.Errorf("config.SideSpec: spread: %w", err)
	}
	increment, err := parseOffset(c.Ladder.Increment)
	if err != nil {
		return ladder.SideSpec{}, fmt.Errorf("config.SideSpec: increment: %w", err)
	}

	count := c.Ladder.BuyOrdersCount
	funds, volume := c.Ladder.BuyFunds, c.Ladder.BuyVolumePerOrder
	if side == domain.SideSell {
		count = c.Ladder.SellOrdersCount
		funds, volume = c.Ladder.SellFunds, c.Ladder.SellVolumePerOrder
	}

	alloc, err := parseAllocation(funds, volume)
	if err != nil {
		return ladder.SideSpec{}, fmt.Errorf("config.SideSpec: %s allocation: %w", side, err)
	}

	return ladder.SideSpec{
		Side:       side,
		Spread:     spread,
		Increment:  increment,
		OrderCount: count,
		Allocation: alloc,
	}, nil
}

// EntryConfig materializa la configuración de entradas DCA.
func (c *Config) EntryConfig() (dca.EntryConfig, error) {
	amount, err := parseAmount(c.DCA.EntryAmount)
	if err != nil {
		return dca.EntryConfig{}, fmt.Errorf("config.EntryConfig: entry_amount: %w", err)
	}
	secondaryAmount := amount
	if c.DCA.SecondaryEntryOrdersAmount != "" {
		if secondaryAmount, err = parseAmount(c.DCA.SecondaryEntryOrdersAmount); err != nil {
			return dca.EntryConfig{}, fmt.Errorf("config.EntryConfig: secondary_entry_orders_amount: %w", err)
		}
	}
	return dca.EntryConfig{
		Symbol:                   c.Symbol,
		Amount:                   amount,
		LimitPriceMultiplier:     percentMultiplier(c.DCA.EntryLimitOrdersPricePercent),
		UseMarketEntry:           c.DCA.UseMarketEntryOrders,
		UseSecondaryEntries:      c.DCA.UseSecondaryEntryOrders,
		SecondaryEntryCount:      c.DCA.SecondaryEntryOrdersCount,
		SecondaryEntryAmount:     secondaryAmount,
		SecondaryEntryMultiplier: percentMultiplier(c.DCA.SecondaryEntryOrdersPricePercent),
	}, nil
}

// ExitConfig materializa la configuración de exits encadenados.
func (c *Config) ExitConfig() dca.ExitConfig {
	return dca.ExitConfig{
		UseStopLoss:             c.DCA.UseStopLosses,
		StopLossMultiplier:      percentMultiplier(c.DCA.StopLossPricePercent),
		UseTakeProfit:           c.DCA.UseTakeProfitExitOrders,
		TakeProfitMultiplier:    percentMultiplier(c.DCA.ExitLimitOrdersPricePercent),
		UseSecondaryExits:       c.DCA.UseSecondaryExitOrders,
		SecondaryExitCount:      c.DCA.SecondaryExitOrdersCount,
		SecondaryExitMultiplier: percentMultiplier(c.DCA.SecondaryExitOrdersPricePercent),
	}
}

// RouterConfig materializa la configuración del router de señales.
func (c *Config) RouterConfig() dca.RouterConfig {
	mode := dca.TriggerSignal
	if c.DCA.TriggerMode == string(dca.TriggerPeriodic) {
		mode = dca.TriggerPeriodic
	}
	return dca.RouterConfig{
		Mode:     mode,
		Cooldown: time.Duration(c.DCA.MinutesBeforeNextBuy) * time.Minute,
		Interval: time.Duration(c.DCA.IntervalMinutes) * time.Minute,
	}
}

// parseOffset interpreta "10" como valor flat y "0.5%" como porcentaje.
func parseOffset(s string) (ladder.Offset, error) {
	if s == "" {
		return ladder.Offset{}, nil
	}
	if pct, ok := strings.CutSuffix(s, "%"); ok {
		v, err := decimal.NewFromString(strings.TrimSpace(pct))
		if err != nil {
			return ladder.Offset{}, err
		}
		return ladder.Percent(v.Div(decimal.NewFromInt(100))), nil
	}
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return ladder.Offset{}, err
	}
	return ladder.Flat(v), nil
}

// parseAmount interpreta "0.2" como importe flat y "12%" como fracción del disponible.
func parseAmount(s string) (dca.Amount, error) {
	if s == "" {
		return dca.FlatAmount(decimal.Zero), nil
	}
	if pct, ok := strings.CutSuffix(s, "%"); ok {
		v, err := decimal.NewFromString(strings.TrimSpace(pct))
		if err != nil {
			return dca.Amount{}, err
		}
		return dca.PercentAmount(v.Div(decimal.NewFromInt(100))), nil
	}
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return dca.Amount{}, err
	}
	return dca.FlatAmount(v), nil
}

func parseAllocation(funds, volume string) (ladder.Allocation, error) {
	var alloc ladder.Allocation
	var err error
	if volume != "" {
		if alloc.VolumePerOrder, err = decimal.NewFromString(volume); err != nil {
			return alloc, err
		}
	}
	if funds != "" {
		if alloc.Funds, err = decimal.NewFromString(funds); err != nil {
			return alloc, err
		}
	}
	return alloc, nil
}

func percentMultiplier(pct float64) decimal.Decimal {
	return decimal.NewFromFloat(pct).Div(decimal.NewFromInt(100))
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("SYMBOL"); v != "" {
		cfg.Symbol = v
	}
}

// setDefaults aplica defaults sensatos a los valores no configurados.
func setDefaults(cfg *Config) {
	if cfg.Symbol == "" {
		cfg.Symbol = "BTC/USDT"
	}
	if cfg.Ladder.IntervalSeconds <= 0 {
		cfg.Ladder.IntervalSeconds = 30
	}
	if cfg.Ladder.PriceWaitSeconds <= 0 {
		cfg.Ladder.PriceWaitSeconds = 10
	}
	if cfg.Ladder.TradeWindowMinutes <= 0 {
		cfg.Ladder.TradeWindowMinutes = 15
	}
	if cfg.Ladder.BuyOrdersCount <= 0 {
		cfg.Ladder.BuyOrdersCount = 10
	}
	if cfg.Ladder.SellOrdersCount <= 0 {
		cfg.Ladder.SellOrdersCount = 10
	}
	if cfg.DCA.TriggerMode == "" {
		cfg.DCA.TriggerMode = string(dca.TriggerSignal)
	}
	if cfg.DCA.IntervalMinutes <= 0 {
		cfg.DCA.IntervalMinutes = 60
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "ladderbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
