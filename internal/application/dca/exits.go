package dca

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ladderbot/internal/application/engine"
	"github.com/alejandrodnm/ladderbot/internal/domain"
)

// ExitConfig controls which chained exit orders an entry spawns.
type ExitConfig struct {
	UseStopLoss        bool
	StopLossMultiplier decimal.Decimal // stop at entry*(1-m)

	UseTakeProfit        bool
	TakeProfitMultiplier decimal.Decimal // take profit at entry*(1+m)

	UseSecondaryExits       bool
	SecondaryExitCount      int
	SecondaryExitMultiplier decimal.Decimal // extra spacing per further tranche
}

// ExitBuilder constructs the chained exit orders of a filled or about-to-fill
// entry: stop-loss, take-profit, and secondary scaled-out take-profits, with
// mutually exclusive legs grouped under an OCO relation.
type ExitBuilder struct {
	cfg    ExitConfig
	groups *engine.GroupRegistry
}

// NewExitBuilder crea el builder con el registro de grupos de la sesión.
func NewExitBuilder(cfg ExitConfig, groups *engine.GroupRegistry) *ExitBuilder {
	return &ExitBuilder{cfg: cfg, groups: groups}
}

// Build returns the chained orders for the entry, in pending-creation state
// until the entry itself confirms filled, plus the OCO groups created for
// them. Rules:
//
//   - neither stop nor take-profit enabled: no chained orders;
//   - only one of them: a single ungrouped leg for the full entry quantity;
//   - both: K+1 stop/take-profit pairs (K secondary tranches when enabled,
//     otherwise exactly one pair regardless of the configured count). Stop
//     legs all share the same trigger price; take-profit prices strictly
//     increase to scale out progressively. Each pair has its own OCO group,
//     and the stop and take-profit quantities each sum exactly to the entry
//     quantity.
//
// When funds or market minimums cannot support the requested tranche count,
// fewer tranches are produced silently (the splitter degrades the count).
func (b *ExitBuilder) Build(entry domain.LiveOrder, market domain.MarketStatus) ([]domain.LiveOrder, []*domain.OCOGroup) {
	if !b.cfg.UseStopLoss && !b.cfg.UseTakeProfit {
		return nil, nil
	}

	one := decimal.NewFromInt(1)
	stopPrice := market.RoundPrice(entry.Price.Mul(one.Sub(b.cfg.StopLossMultiplier)))

	if b.cfg.UseStopLoss != b.cfg.UseTakeProfit {
		leg := exitLeg(entry, market, domain.TypeStopLoss, stopPrice, entry.Quantity)
		if b.cfg.UseTakeProfit {
			tpPrice := market.RoundPrice(entry.Price.Mul(one.Add(b.cfg.TakeProfitMultiplier)))
			leg = exitLeg(entry, market, domain.TypeSellLimit, tpPrice, entry.Quantity)
		}
		return []domain.LiveOrder{leg}, nil
	}

	tranches := 1
	if b.cfg.UseSecondaryExits && b.cfg.SecondaryExitCount > 0 {
		if b.cfg.SecondaryExitMultiplier.IsPositive() {
			tranches = b.cfg.SecondaryExitCount + 1
		} else {
			// Sin multiplicador los TP no pueden escalar: un único par.
			slog.Warn("dca: secondary exits need a positive multiplier, using one tranche",
				"symbol", entry.Symbol)
		}
	}

	parts := Split(entry.Quantity, tranches, entry.Price, market)
	if len(parts) == 0 {
		return nil, nil
	}

	orders := make([]domain.LiveOrder, 0, 2*len(parts))
	groups := make([]*domain.OCOGroup, 0, len(parts))
	tpMult := b.cfg.TakeProfitMultiplier

	for i, part := range parts {
		offset := tpMult.Add(b.cfg.SecondaryExitMultiplier.Mul(decimal.NewFromInt(int64(i))))
		tpPrice := market.RoundPrice(entry.Price.Mul(one.Add(offset)))

		stop := exitLeg(entry, market, domain.TypeStopLoss, stopPrice, part.Quantity)
		tp := exitLeg(entry, market, domain.TypeSellLimit, tpPrice, part.Quantity)

		g := b.groups.NewGroup(entry.ID, []string{stop.ID, tp.ID})
		stop.GroupID = g.ID
		tp.GroupID = g.ID

		orders = append(orders, stop, tp)
		groups = append(groups, g)
	}
	return orders, groups
}

func exitLeg(entry domain.LiveOrder, market domain.MarketStatus, typ domain.OrderType, price, qty decimal.Decimal) domain.LiveOrder {
	return domain.LiveOrder{
		ID:          uuid.New().String(),
		Symbol:      entry.Symbol,
		Side:        domain.SideSell,
		Type:        typ,
		Price:       price,
		Quantity:    qty,
		Status:      domain.StatusPendingCreation,
		TriggeredBy: entry.ID,
	}
}
