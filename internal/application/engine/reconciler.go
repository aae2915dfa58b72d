package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ladderbot/internal/application/ladder"
	"github.com/alejandrodnm/ladderbot/internal/domain"
	"github.com/alejandrodnm/ladderbot/internal/ports"
)

const (
	defaultPriceWait   = 10 * time.Second
	defaultTradeWindow = 15 * time.Minute
)

// Config holds configuration for the reconciliation engine.
type Config struct {
	Symbol string
	Buy    ladder.SideSpec
	Sell   ladder.SideSpec

	// PriceWait bounds how long a cycle waits for a reference price before
	// skipping entirely. Never falls back to a stale or zero price.
	PriceWait time.Duration

	// TradeWindow is the recent-trade lookback used to decide whether an
	// offline-filled level is refilled or left vacant.
	TradeWindow time.Duration
}

// CycleStats contains everything produced by one reconciliation cycle.
type CycleStats struct {
	Created      int
	Cancelled    int
	Kept         int
	OfflineFills int
	BuyDepth     int
	SellDepth    int
	Skipped      bool
	Failures     []string
}

// Reconciler diffs the target ladder against the exchange's open orders on
// every price update and fill notification. Cycles for one symbol run under a
// single mutex, so rapid-fire fill notifications cannot double-spend funds.
type Reconciler struct {
	cfg      Config
	exchange ports.Exchange
	store    ports.OrderStore
	funds    *FundsTracker
	groups   *GroupRegistry
	notifier ports.Notifier

	buyPlanner  *ladder.Planner
	sellPlanner *ladder.Planner

	mu sync.Mutex
	// tracked is the previously-known open set, keyed by exchange ID. An
	// order missing from a fresh snapshot that we did not cancel ourselves
	// is inferred filled while unobserved.
	tracked       map[string]domain.LiveOrder
	cancelledByUs map[string]bool
	restoredTrack bool
}

// NewReconciler crea el motor de reconciliación para un símbolo.
func NewReconciler(cfg Config, exchange ports.Exchange, store ports.OrderStore, funds *FundsTracker, groups *GroupRegistry, notifier ports.Notifier) *Reconciler {
	if cfg.PriceWait <= 0 {
		cfg.PriceWait = defaultPriceWait
	}
	if cfg.TradeWindow <= 0 {
		cfg.TradeWindow = defaultTradeWindow
	}
	return &Reconciler{
		cfg:           cfg,
		exchange:      exchange,
		store:         store,
		funds:         funds,
		groups:        groups,
		notifier:      notifier,
		buyPlanner:    ladder.NewPlanner(cfg.Symbol, cfg.Buy),
		sellPlanner:   ladder.NewPlanner(cfg.Symbol, cfg.Sell),
		tracked:       make(map[string]domain.LiveOrder),
		cancelledByUs: make(map[string]bool),
	}
}

// InvalidateOffsets fuerza a recalcular spread/increment relativos en el
// próximo ciclo (p.ej. tras un cambio de configuración).
func (r *Reconciler) InvalidateOffsets() {
	r.buyPlanner.Invalidate()
	r.sellPlanner.Invalidate()
}

// OnPriceUpdate runs one reconciliation cycle for a fresh price observation.
func (r *Reconciler) OnPriceUpdate(ctx context.Context) (CycleStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runCycle(ctx)
}

// OnOrderFilled reacts to a fill notification for a tracked order: the fill
// is recorded, its OCO group (if any) is torn down, and a reconciliation
// cycle re-runs so the vacated level can be replaced.
func (r *Reconciler) OnOrderFilled(ctx context.Context, order domain.LiveOrder) (CycleStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.UpdateOrderStatus(ctx, order.ID, domain.StatusFilled, timeNow()); err != nil {
		slog.Warn("engine: record fill", "symbol", r.cfg.Symbol, "order", order.ID, "err", err)
	}
	delete(r.tracked, order.ExchangeID)

	// El venue promociona los legs encadenados de la orden llenada; aquí
	// solo se refleja esa transición en el store.
	if legs, err := r.store.GetChainedOrders(ctx, order.ID); err != nil {
		slog.Warn("engine: load chained legs", "order", order.ID, "err", err)
	} else {
		for _, leg := range legs {
			if leg.Status != domain.StatusPendingCreation {
				continue
			}
			if err := r.store.UpdateOrderStatus(ctx, leg.ID, domain.StatusOpen, timeNow()); err != nil {
				slog.Warn("engine: mark chained leg open", "order", leg.ID, "err", err)
			}
		}
	}

	r.groups.OnOrderTerminated(ctx, order.ID, r.exchange, r.store)

	return r.runCycle(ctx)
}

// runCycle executes the seven reconciliation steps. Caller holds r.mu.
func (r *Reconciler) runCycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats

	ref, err := r.waitReferencePrice(ctx)
	if err != nil {
		stats.Skipped = true
		slog.Warn("engine: no fresh price, skipping cycle", "symbol", r.cfg.Symbol, "err", err)
		r.saveSummary(ctx, stats)
		return stats, err
	}

	market, err := r.exchange.GetMarketStatus(ctx, r.cfg.Symbol)
	if err != nil {
		stats.Skipped = true
		return stats, fmt.Errorf("engine.runCycle: market status %s: %w", r.cfg.Symbol, err)
	}

	// 1. Snapshot current open orders, partitioned by side. Chained exit
	// legs belong to their OCO group, never to the ladder.
	open, err := r.exchange.GetOpenOrders(ctx, r.cfg.Symbol)
	if err != nil {
		stats.Skipped = true
		return stats, fmt.Errorf("engine.runCycle: open orders %s: %w", r.cfg.Symbol, err)
	}
	ladderOpen := make([]domain.LiveOrder, 0, len(open))
	for _, o := range open {
		if o.GroupID == "" && o.TriggeredBy == "" {
			ladderOpen = append(ladderOpen, o)
		}
	}

	// 5 (early so refill decisions can veto creations below). Detect fills
	// that happened while unobserved.
	vacant := r.detectOfflineFills(ctx, ladderOpen, market, &stats)

	// 2. Recompute the target ladder with fresh balances. Open orders
	// already reserve their cost on the exchange, so the available figures
	// exclude them.
	if err := r.syncFunds(ctx, market); err != nil {
		stats.Skipped = true
		return stats, err
	}

	buyPlan, err := r.buyPlanner.Plan(ref, r.sideBudget(r.cfg.Buy, market), market)
	if err != nil {
		stats.Skipped = true
		return stats, fmt.Errorf("engine.runCycle: plan buy: %w", err)
	}
	sellPlan, err := r.sellPlanner.Plan(ref, r.sideBudget(r.cfg.Sell, market), market)
	if err != nil {
		stats.Skipped = true
		return stats, fmt.Errorf("engine.runCycle: plan sell: %w", err)
	}
	stats.BuyDepth = buyPlan.Depth
	stats.SellDepth = sellPlan.Depth

	// 3+4. Cancel what the ladder moved away from, keep in-bounds matches.
	// Cancellations complete before creations so freed balance is visible.
	kept := r.cancelOutOfBounds(ctx, ladderOpen, buyPlan.Bounds, sellPlan.Bounds, market, &stats)

	// 6+7. Create uncovered target levels, nearest to the reference first.
	r.createMissing(ctx, buyPlan, kept, vacant, market, &stats)
	r.createMissing(ctx, sellPlan, kept, vacant, market, &stats)

	r.saveSummary(ctx, stats)
	r.notify(ctx, stats)

	slog.Info("engine: cycle done",
		"symbol", r.cfg.Symbol,
		"ref", ref,
		"created", stats.Created,
		"cancelled", stats.Cancelled,
		"kept", stats.Kept,
		"offline_fills", stats.OfflineFills,
	)
	return stats, nil
}

// waitReferencePrice fetches the reference price within the configured wait
// budget. On timeout the cycle is skipped — never run on a stale/zero price.
func (r *Reconciler) waitReferencePrice(ctx context.Context) (decimal.Decimal, error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.PriceWait)
	defer cancel()

	ref, err := r.exchange.GetReferencePrice(waitCtx, r.cfg.Symbol)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return decimal.Zero, fmt.Errorf("engine: price wait %s: %w", r.cfg.PriceWait, domain.ErrStalePrice)
		}
		return decimal.Zero, fmt.Errorf("engine: reference price %s: %w", r.cfg.Symbol, err)
	}
	if !ref.IsPositive() {
		return decimal.Zero, fmt.Errorf("engine: non-positive price %s: %w", ref, domain.ErrStalePrice)
	}
	return ref, nil
}

func (r *Reconciler) syncFunds(ctx context.Context, market domain.MarketStatus) error {
	quote, err := r.exchange.GetAvailableBalance(ctx, market.QuoteAsset())
	if err != nil {
		return fmt.Errorf("engine.syncFunds: %s balance: %w", market.QuoteAsset(), err)
	}
	base, err := r.exchange.GetAvailableBalance(ctx, market.BaseAsset())
	if err != nil {
		return fmt.Errorf("engine.syncFunds: %s balance: %w", market.BaseAsset(), err)
	}
	r.funds.Sync(market.QuoteAsset(), quote)
	r.funds.Sync(market.BaseAsset(), base)
	return nil
}

// sideBudget is the planning budget for a side: the configured funds bound
// the ladder's shape, regardless of what is currently spendable. Per-level
// creation still reserves against the live tracker.
func (r *Reconciler) sideBudget(spec ladder.SideSpec, market domain.MarketStatus) decimal.Decimal {
	if spec.Allocation.FixedVolume() {
		// Fixed volume mode has no configured budget: the spendable balance
		// plus what open ladder orders already reserve bounds the walk.
		return r.funds.Available(r.sideAsset(spec.Side, market)).Add(r.openReserved(spec.Side))
	}
	return spec.Allocation.Funds
}

func (r *Reconciler) sideAsset(side domain.Side, market domain.MarketStatus) string {
	if side == domain.SideBuy {
		return market.QuoteAsset()
	}
	return market.BaseAsset()
}

// openReserved suma el coste reservado por las órdenes ladder trackeadas de un lado.
func (r *Reconciler) openReserved(side domain.Side) decimal.Decimal {
	total := decimal.Zero
	for _, o := range r.tracked {
		if o.Side != side {
			continue
		}
		total = total.Add(domain.OrderIntent{Side: o.Side, Price: o.Price, Quantity: o.Quantity}.Cost())
	}
	return total
}

// detectOfflineFills compares the previously tracked open set against the
// fresh snapshot. Orders that disappeared without us cancelling them are
// inferred filled. Recent trades decide whether each vacated level is
// refilled this cycle or left vacant; no trade evidence defaults to refill.
func (r *Reconciler) detectOfflineFills(ctx context.Context, open []domain.LiveOrder, market domain.MarketStatus, stats *CycleStats) map[string]bool {
	if !r.restoredTrack {
		r.restoreTracked(ctx, open)
	}

	current := make(map[string]bool, len(open))
	for _, o := range open {
		current[o.ExchangeID] = true
	}

	vacant := make(map[string]bool)
	var trades []domain.Trade
	tradesLoaded := false

	for exID, prev := range r.tracked {
		if current[exID] {
			continue
		}
		delete(r.tracked, exID)
		if r.cancelledByUs[exID] {
			delete(r.cancelledByUs, exID)
			continue
		}

		// Inferred filled while unobserved.
		stats.OfflineFills++
		now := timeNow()
		if err := r.store.UpdateOrderStatus(ctx, prev.ID, domain.StatusFilled, now); err != nil {
			slog.Warn("engine: record offline fill", "order", prev.ID, "err", err)
		}
		r.groups.OnOrderTerminated(ctx, prev.ID, r.exchange, r.store)

		if !tradesLoaded {
			trades, _ = r.exchange.GetRecentTrades(ctx, r.cfg.Symbol, r.cfg.TradeWindow)
			tradesLoaded = true
		}
		if !r.shouldRefill(prev, trades, market) {
			vacant[priceKey(prev.Side, prev.Price, market)] = true
			slog.Info("engine: leaving filled level vacant",
				"symbol", r.cfg.Symbol, "side", prev.Side, "price", prev.Price)
		}
		slog.Info("engine: offline fill detected",
			"symbol", r.cfg.Symbol, "side", prev.Side, "price", prev.Price, "qty", prev.Quantity)
	}
	return vacant
}

// shouldRefill: the level is recreated when the last trade is still within
// two increments of it (price returned near the level), or when there is no
// trade evidence at all. Trades decisively past the level leave it vacant.
func (r *Reconciler) shouldRefill(filled domain.LiveOrder, trades []domain.Trade, market domain.MarketStatus) bool {
	if len(trades) == 0 {
		return true
	}
	planner := r.buyPlanner
	if filled.Side == domain.SideSell {
		planner = r.sellPlanner
	}
	_, increment := planner.Offsets(filled.Price, market)
	if !increment.IsPositive() {
		return true
	}
	last := trades[len(trades)-1].Price
	return last.Sub(filled.Price).Abs().LessThanOrEqual(increment.Mul(two))
}

// restoreTracked reconstructs the previously-known order set after a restart:
// store-tracked orders absent from the live snapshot will be treated as
// offline fills by the caller.
func (r *Reconciler) restoreTracked(ctx context.Context, open []domain.LiveOrder) {
	r.restoredTrack = true
	persisted, err := r.store.GetTrackedOrders(ctx, r.cfg.Symbol)
	if err != nil {
		slog.Warn("engine: restore tracked orders", "symbol", r.cfg.Symbol, "err", err)
	}
	for _, o := range persisted {
		if o.Status == domain.StatusOpen && o.GroupID == "" && o.TriggeredBy == "" {
			r.tracked[o.ExchangeID] = o
		}
	}
	for _, o := range open {
		if o.GroupID == "" && o.TriggeredBy == "" {
			r.tracked[o.ExchangeID] = o
		}
	}
}

// cancelOutOfBounds cancels every ladder order whose price fell outside its
// side's fresh bounds and returns the price keys still covered by kept
// orders. A failed cancellation keeps the order in the tracked set and is
// retried next cycle.
func (r *Reconciler) cancelOutOfBounds(ctx context.Context, open []domain.LiveOrder, buyBounds, sellBounds domain.PriceRange, market domain.MarketStatus, stats *CycleStats) map[string]bool {
	kept := make(map[string]bool)

	for _, o := range open {
		bounds := buyBounds
		if o.Side == domain.SideSell {
			bounds = sellBounds
		}
		if bounds.Contains(o.Price) {
			kept[priceKey(o.Side, o.Price, market)] = true
			stats.Kept++
			r.tracked[o.ExchangeID] = o
			continue
		}

		if err := r.exchange.CancelOrder(ctx, o.ExchangeID); err != nil {
			stats.Failures = append(stats.Failures, fmt.Sprintf("cancel %s: %v", o.ExchangeID, err))
			slog.Warn("engine: cancel failed, level retried next cycle",
				"symbol", r.cfg.Symbol, "order", o.ExchangeID, "err", err)
			// Still open on the venue: treat as kept so we don't double-place.
			kept[priceKey(o.Side, o.Price, market)] = true
			continue
		}
		r.cancelledByUs[o.ExchangeID] = true
		delete(r.tracked, o.ExchangeID)
		stats.Cancelled++
		if err := r.store.UpdateOrderStatus(ctx, o.ID, domain.StatusCancelled, timeNow()); err != nil {
			slog.Warn("engine: mark cancelled", "order", o.ID, "err", err)
		}
		// Freed balance is visible to the creations of this same cycle.
		r.funds.Release(r.sideAsset(o.Side, market), domain.OrderIntent{Side: o.Side, Price: o.Price, Quantity: o.Quantity}.Cost())
	}
	return kept
}

// createMissing materializes target levels not covered by a kept order,
// nearest to the reference first, each one reserved against the funds
// tracker before submission. Per-level failures never abort the cycle.
func (r *Reconciler) createMissing(ctx context.Context, plan ladder.Plan, kept, vacant map[string]bool, market domain.MarketStatus, stats *CycleStats) {
	asset := r.sideAsset(plan.Side, market)

	for _, it := range plan.Intents {
		key := priceKey(plan.Side, it.Price, market)
		if kept[key] || vacant[key] {
			continue
		}

		cost := it.Cost()
		if err := r.funds.Reserve(asset, cost); err != nil {
			if errors.Is(err, domain.ErrInsufficientFunds) {
				slog.Debug("engine: level unfunded, skipping",
					"symbol", r.cfg.Symbol, "side", plan.Side, "price", it.Price)
				continue
			}
			stats.Failures = append(stats.Failures, fmt.Sprintf("reserve %s: %v", it.Price, err))
			continue
		}

		placed, _, err := r.exchange.CreateOrder(ctx, it, nil)
		if err != nil {
			r.funds.Release(asset, cost)
			stats.Failures = append(stats.Failures, fmt.Sprintf("create %s@%s: %v", plan.Side, it.Price, err))
			slog.Warn("engine: create failed, level retried next cycle",
				"symbol", r.cfg.Symbol, "side", plan.Side, "price", it.Price, "err", err)
			continue
		}
		if placed.ID == "" {
			placed.ID = uuid.New().String()
		}
		if err := r.store.SaveOrder(ctx, placed); err != nil {
			slog.Warn("engine: persist order", "order", placed.ID, "err", err)
		}
		r.tracked[placed.ExchangeID] = placed
		kept[key] = true
		stats.Created++
	}
}

func (r *Reconciler) saveSummary(ctx context.Context, stats CycleStats) {
	s := ports.CycleSummary{
		Symbol:       r.cfg.Symbol,
		RanAt:        timeNow(),
		Created:      stats.Created,
		Cancelled:    stats.Cancelled,
		Kept:         stats.Kept,
		OfflineFills: stats.OfflineFills,
		BuyDepth:     stats.BuyDepth,
		SellDepth:    stats.SellDepth,
		Skipped:      stats.Skipped,
	}
	if err := r.store.SaveCycleSummary(ctx, s); err != nil {
		slog.Warn("engine: save cycle summary", "symbol", r.cfg.Symbol, "err", err)
	}
}

func (r *Reconciler) notify(ctx context.Context, stats CycleStats) {
	if r.notifier == nil {
		return
	}
	orders := make([]domain.LiveOrder, 0, len(r.tracked))
	for _, o := range r.tracked {
		orders = append(orders, o)
	}
	s := ports.CycleSummary{
		Symbol:       r.cfg.Symbol,
		RanAt:        timeNow(),
		Created:      stats.Created,
		Cancelled:    stats.Cancelled,
		Kept:         stats.Kept,
		OfflineFills: stats.OfflineFills,
		BuyDepth:     stats.BuyDepth,
		SellDepth:    stats.SellDepth,
	}
	if err := r.notifier.NotifyLadder(ctx, r.cfg.Symbol, orders, s); err != nil {
		slog.Warn("engine: notify", "symbol", r.cfg.Symbol, "err", err)
	}
}

var two = decimal.NewFromInt(2)

// priceKey identifica un nivel por lado y precio redondeado: un sell
// aparcado en el precio de un target buy nunca cubre ese nivel.
func priceKey(side domain.Side, p decimal.Decimal, market domain.MarketStatus) string {
	return string(side) + "@" + market.RoundPrice(p).String()
}

func timeNow() time.Time {
	return time.Now().UTC()
}
