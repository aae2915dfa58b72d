package dca

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ladderbot/internal/application/engine"
	"github.com/alejandrodnm/ladderbot/internal/domain"
	"github.com/alejandrodnm/ladderbot/internal/ports"
)

// Amount is an entry budget expressed flat (in quote) or as a fraction of the
// available balance. Resolved once per entry evaluation.
type Amount struct {
	value   decimal.Decimal
	percent bool
}

// FlatAmount builds an absolute quote amount.
func FlatAmount(v decimal.Decimal) Amount {
	return Amount{value: v}
}

// PercentAmount builds an amount relative to the available balance (0.12 = 12%).
func PercentAmount(v decimal.Decimal) Amount {
	return Amount{value: v, percent: true}
}

// Resolve devuelve el importe en quote, nunca por encima del disponible.
func (a Amount) Resolve(available decimal.Decimal) decimal.Decimal {
	v := a.value
	if a.percent {
		v = available.Mul(a.value)
	}
	if v.GreaterThan(available) {
		return available
	}
	return v
}

// EntryConfig controls DCA entry construction.
type EntryConfig struct {
	Symbol string
	Amount Amount

	// LimitPriceMultiplier places the primary entry at ref*(1-m).
	LimitPriceMultiplier decimal.Decimal

	// UseMarketEntry substitutes a market order for the primary leg when the
	// signal is VERY_LONG.
	UseMarketEntry bool

	// Secondary legs carry their own configured amount each; with no amount
	// configured only the primary entry is created.
	UseSecondaryEntries      bool
	SecondaryEntryCount      int
	SecondaryEntryAmount     Amount
	SecondaryEntryMultiplier decimal.Decimal // extra discount per further leg
}

// EntryBuilder constructs scaled-in entry legs with their chained exits and
// submits them to the exchange.
type EntryBuilder struct {
	cfg      EntryConfig
	exchange ports.Exchange
	store    ports.OrderStore
	funds    *engine.FundsTracker
	groups   *engine.GroupRegistry
	exits    *ExitBuilder

	mu sync.Mutex
	// Entradas de la evaluación anterior: si siguen abiertas al llegar una
	// señal nueva, se cancelan antes de crear el grupo que las reemplaza.
	openEntries []domain.LiveOrder
}

// NewEntryBuilder crea el builder de entradas DCA.
func NewEntryBuilder(cfg EntryConfig, exchange ports.Exchange, store ports.OrderStore, funds *engine.FundsTracker, groups *engine.GroupRegistry, exits *ExitBuilder) *EntryBuilder {
	return &EntryBuilder{
		cfg:      cfg,
		exchange: exchange,
		store:    store,
		funds:    funds,
		groups:   groups,
		exits:    exits,
	}
}

// CreateEntries builds and submits the entry order group for a bullish
// signal: a primary leg at ref*(1-m) — or at market for VERY_LONG when
// configured — plus the secondary scaled-in legs, each with its chained
// exits attached in pending-creation state. Entries from the previous
// evaluation still open on the venue are cancelled first. Per-leg failures
// degrade the plan instead of aborting it. Returns the number of entry legs
// submitted.
func (b *EntryBuilder) CreateEntries(ctx context.Context, state domain.SignalState) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ref, err := b.exchange.GetReferencePrice(ctx, b.cfg.Symbol)
	if err != nil {
		return 0, fmt.Errorf("dca.CreateEntries: reference price: %w", err)
	}
	if !ref.IsPositive() {
		return 0, fmt.Errorf("dca.CreateEntries: non-positive price %s: %w", ref, domain.ErrStalePrice)
	}
	market, err := b.exchange.GetMarketStatus(ctx, b.cfg.Symbol)
	if err != nil {
		return 0, fmt.Errorf("dca.CreateEntries: market status: %w", err)
	}

	b.cancelStaleEntries(ctx)

	available, err := b.exchange.GetAvailableBalance(ctx, market.QuoteAsset())
	if err != nil {
		return 0, fmt.Errorf("dca.CreateEntries: balance: %w", err)
	}
	b.funds.Sync(market.QuoteAsset(), available)

	spend := b.cfg.Amount.Resolve(available)
	if !spend.IsPositive() {
		return 0, fmt.Errorf("dca.CreateEntries: nothing to spend: %w", domain.ErrInsufficientFunds)
	}

	one := decimal.NewFromInt(1)
	primaryPrice := market.RoundPrice(ref.Mul(one.Sub(b.cfg.LimitPriceMultiplier)))
	if !primaryPrice.IsPositive() {
		return 0, fmt.Errorf("dca.CreateEntries: entry price %s below zero", primaryPrice)
	}

	secondarySpend := decimal.Zero
	legCount := 1
	if b.cfg.UseSecondaryEntries && b.cfg.SecondaryEntryCount > 0 {
		secondarySpend = b.cfg.SecondaryEntryAmount.Resolve(available)
		if secondarySpend.IsPositive() {
			legCount += b.cfg.SecondaryEntryCount
		} else {
			slog.Debug("dca: no secondary entry amount, primary leg only", "symbol", b.cfg.Symbol)
		}
	}

	created := 0
	for i := 0; i < legCount; i++ {
		discount := b.cfg.LimitPriceMultiplier.Add(b.cfg.SecondaryEntryMultiplier.Mul(decimal.NewFromInt(int64(i))))
		price := market.RoundPrice(ref.Mul(one.Sub(discount)))
		if !price.IsPositive() {
			break
		}

		typ := domain.TypeBuyLimit
		if i == 0 && b.cfg.UseMarketEntry && state == domain.SignalVeryLong {
			typ = domain.TypeBuyMarket
			price = market.RoundPrice(ref)
		}

		legSpend := spend
		if i > 0 {
			legSpend = secondarySpend
		}
		qty := market.TruncateQuantity(legSpend.Div(price))
		if !market.ValidOrder(price, qty) {
			if i == 0 {
				return 0, fmt.Errorf("dca.CreateEntries: %s@%s below market minimum: %w",
					qty, price, domain.ErrBelowMarketMinimum)
			}
			slog.Debug("dca: secondary leg below market minimum, skipping",
				"symbol", b.cfg.Symbol, "price", price, "qty", qty)
			continue
		}

		if err := b.submitEntryLeg(ctx, typ, price, qty, market); err != nil {
			slog.Warn("dca: entry leg failed", "symbol", b.cfg.Symbol, "price", price, "err", err)
			continue
		}
		created++
	}
	return created, nil
}

// cancelStaleEntries cancela las entradas del grupo anterior que siguen
// abiertas en el venue; sus exits pendientes mueren con ellas. Una
// cancelación fallida se reintenta en la próxima evaluación.
func (b *EntryBuilder) cancelStaleEntries(ctx context.Context) {
	if len(b.openEntries) == 0 {
		return
	}
	open, err := b.exchange.GetOpenOrders(ctx, b.cfg.Symbol)
	if err != nil {
		slog.Warn("dca: open orders for stale entry cancel", "symbol", b.cfg.Symbol, "err", err)
		return
	}
	live := make(map[string]bool, len(open))
	for _, o := range open {
		live[o.ExchangeID] = true
	}

	var remaining []domain.LiveOrder
	for _, e := range b.openEntries {
		if !live[e.ExchangeID] {
			// Llenada o cancelada fuera: nada que retirar.
			continue
		}
		if err := b.exchange.CancelOrder(ctx, e.ExchangeID); err != nil {
			slog.Warn("dca: cancel stale entry", "order", e.ID, "err", err)
			remaining = append(remaining, e)
			continue
		}
		if err := b.store.UpdateOrderStatus(ctx, e.ID, domain.StatusCancelled, timeNow()); err != nil {
			slog.Warn("dca: mark stale entry cancelled", "order", e.ID, "err", err)
		}
		legs, err := b.store.GetChainedOrders(ctx, e.ID)
		if err != nil {
			slog.Warn("dca: load chained legs of stale entry", "order", e.ID, "err", err)
			continue
		}
		for _, leg := range legs {
			if leg.Status != domain.StatusPendingCreation {
				continue
			}
			if err := b.store.UpdateOrderStatus(ctx, leg.ID, domain.StatusCancelled, timeNow()); err != nil {
				slog.Warn("dca: mark stale chained leg cancelled", "order", leg.ID, "err", err)
			}
			if leg.GroupID != "" {
				b.groups.Abandon(leg.GroupID)
			}
		}
		slog.Info("dca: stale entry cancelled", "symbol", b.cfg.Symbol, "order", e.ID, "price", e.Price)
	}
	b.openEntries = remaining
}

// submitEntryLeg reserves funds, attaches the chained exits and submits one
// entry order. The venue assigns each chained leg its exchange identity; the
// legs are persisted with it so OCO teardown can reach them later. On
// submission failure the reservation is released and the half-built OCO
// groups are abandoned, never left dangling.
func (b *EntryBuilder) submitEntryLeg(ctx context.Context, typ domain.OrderType, price, qty decimal.Decimal, market domain.MarketStatus) error {
	cost := price.Mul(qty)
	if err := b.funds.Reserve(market.QuoteAsset(), cost); err != nil {
		return err
	}

	entry := domain.LiveOrder{
		ID:       uuid.New().String(),
		Symbol:   b.cfg.Symbol,
		Side:     domain.SideBuy,
		Type:     typ,
		Price:    price,
		Quantity: qty,
		Status:   domain.StatusPendingCreation,
		PlacedAt: timeNow(),
	}

	chained, groups := b.exits.Build(entry, market)
	chainedIntents := make([]domain.OrderIntent, len(chained))
	for i, leg := range chained {
		chainedIntents[i] = legIntent(leg)
	}

	placed, placedLegs, err := b.exchange.CreateOrder(ctx, domain.OrderIntent{
		ID:       entry.ID,
		Symbol:   entry.Symbol,
		Side:     entry.Side,
		Type:     entry.Type,
		Price:    entry.Price,
		Quantity: entry.Quantity,
	}, chainedIntents)
	if err != nil {
		b.funds.Release(market.QuoteAsset(), cost)
		for _, g := range groups {
			b.groups.Abandon(g.ID)
		}
		return fmt.Errorf("dca.submitEntryLeg: create order: %w", err)
	}

	entry.ExchangeID = placed.ExchangeID
	entry.Status = placed.Status
	if entry.Status == "" {
		entry.Status = domain.StatusOpen
	}
	if err := b.store.SaveOrder(ctx, entry); err != nil {
		slog.Warn("dca: persist entry", "order", entry.ID, "err", err)
	}

	legExchangeID := make(map[string]string, len(placedLegs))
	for _, l := range placedLegs {
		legExchangeID[l.ID] = l.ExchangeID
	}
	for _, leg := range chained {
		leg.ExchangeID = legExchangeID[leg.ID]
		if err := b.store.SaveOrder(ctx, leg); err != nil {
			slog.Warn("dca: persist chained leg", "order", leg.ID, "err", err)
		}
	}
	b.openEntries = append(b.openEntries, entry)

	slog.Info("dca: entry submitted",
		"symbol", b.cfg.Symbol,
		"type", typ,
		"price", price,
		"qty", qty,
		"chained", len(chained),
	)
	return nil
}

func legIntent(o domain.LiveOrder) domain.OrderIntent {
	return domain.OrderIntent{
		ID:       o.ID,
		Symbol:   o.Symbol,
		Side:     o.Side,
		Type:     o.Type,
		Price:    o.Price,
		Quantity: o.Quantity,
		GroupID:  o.GroupID,
	}
}

func timeNow() time.Time {
	return time.Now().UTC()
}
