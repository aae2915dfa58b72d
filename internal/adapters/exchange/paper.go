package exchange

// paper.go — exchange simulado en memoria.
//
// Misma superficie que un exchange real (ports.Exchange) pero sin red:
//   - balances por asset, con reserva al crear y liberación al cancelar
//   - fills simulables desde tests o desde el loop de simulación
//   - órdenes encadenadas retenidas hasta que la orden padre se llena
//   - rate limiting como en un venue real, para que el código de arriba
//     ejercite los mismos paths de espera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/ladderbot/internal/domain"
)

const (
	// Límite conservador de operaciones de trading por segundo.
	ordersRatePerSec = 50
	ordersBurst      = 20
)

// Paper is an in-memory simulated exchange for tests and paper trading.
type Paper struct {
	mu sync.Mutex

	market   domain.MarketStatus
	refPrice decimal.Decimal
	balances map[string]decimal.Decimal // available, excluding reservations

	open    map[string]domain.LiveOrder // exchange ID → order
	chained map[string][]domain.LiveOrder
	trades  []domain.Trade

	// Los legs de un grupo OCO comparten una única reserva, como en el OCO
	// de un venue real: cancelar uno no libera hasta que cae el último.
	groupReserved map[string]decimal.Decimal
	groupLive     map[string]int

	limiter *rate.Limiter

	createErr error // fallo inyectado para las siguientes creaciones
	cancelErr error
}

// NewPaper crea el exchange simulado para un mercado.
func NewPaper(market domain.MarketStatus, refPrice decimal.Decimal) *Paper {
	return &Paper{
		market:        market,
		refPrice:      refPrice,
		balances:      make(map[string]decimal.Decimal),
		open:          make(map[string]domain.LiveOrder),
		chained:       make(map[string][]domain.LiveOrder),
		groupReserved: make(map[string]decimal.Decimal),
		groupLive:     make(map[string]int),
		limiter:       rate.NewLimiter(ordersRatePerSec, ordersBurst),
	}
}

// Deposit añade balance disponible para un asset.
func (p *Paper) Deposit(asset string, amount decimal.Decimal) {
	p.mu.Lock()
	p.balances[asset] = p.balances[asset].Add(amount)
	p.mu.Unlock()
}

// SetReferencePrice actualiza el precio de referencia.
func (p *Paper) SetReferencePrice(price decimal.Decimal) {
	p.mu.Lock()
	p.refPrice = price
	p.mu.Unlock()
}

// SetCreateError hace fallar las próximas creaciones (nil lo desactiva).
func (p *Paper) SetCreateError(err error) {
	p.mu.Lock()
	p.createErr = err
	p.mu.Unlock()
}

// SetCancelError hace fallar las próximas cancelaciones (nil lo desactiva).
func (p *Paper) SetCancelError(err error) {
	p.mu.Lock()
	p.cancelErr = err
	p.mu.Unlock()
}

func (p *Paper) GetOpenOrders(_ context.Context, symbol string) ([]domain.LiveOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.LiveOrder, 0, len(p.open))
	for _, o := range p.open {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out, nil
}

func (p *Paper) GetMarketStatus(_ context.Context, symbol string) (domain.MarketStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if symbol != p.market.Symbol {
		return domain.MarketStatus{}, fmt.Errorf("exchange.GetMarketStatus: unknown symbol %q", symbol)
	}
	return p.market, nil
}

func (p *Paper) GetAvailableBalance(_ context.Context, asset string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[asset], nil
}

func (p *Paper) GetReferencePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	p.mu.Lock()
	price := p.refPrice
	p.mu.Unlock()
	if !price.IsPositive() {
		// Sin precio: bloquear hasta que lo haya o el contexto expire,
		// igual que esperar al primer tick de un feed real.
		<-ctx.Done()
		return decimal.Zero, ctx.Err()
	}
	return price, nil
}

func (p *Paper) GetRecentTrades(_ context.Context, symbol string, window time.Duration) ([]domain.Trade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := time.Now().UTC().Add(-window)
	out := make([]domain.Trade, 0, len(p.trades))
	for _, t := range p.trades {
		if t.Symbol == symbol && t.ExecutedAt.After(cutoff) {
			out = append(out, t)
		}
	}
	return out, nil
}

// CreateOrder reserva el balance de la orden y la deja abierta. Las órdenes
// encadenadas quedan retenidas hasta que la padre se llene (RecordFill); sus
// identidades de venue se devuelven en el mismo orden que los intents.
func (p *Paper) CreateOrder(ctx context.Context, intent domain.OrderIntent, chained []domain.OrderIntent) (domain.LiveOrder, []domain.LiveOrder, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.LiveOrder{}, nil, fmt.Errorf("exchange.CreateOrder: rate wait: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.createErr != nil {
		return domain.LiveOrder{}, nil, fmt.Errorf("exchange.CreateOrder: %w", p.createErr)
	}
	if !p.market.ValidOrder(intent.Price, intent.Quantity) && intent.Type != domain.TypeBuyMarket {
		return domain.LiveOrder{}, nil, fmt.Errorf("exchange.CreateOrder: %s@%s: %w",
			intent.Quantity, intent.Price, domain.ErrBelowMarketMinimum)
	}

	asset := p.reserveAsset(intent.Side)
	cost := intent.Cost()
	if cost.GreaterThan(p.balances[asset]) {
		return domain.LiveOrder{}, nil, fmt.Errorf("exchange.CreateOrder: %s %s: %w",
			cost, asset, domain.ErrInsufficientFunds)
	}
	p.balances[asset] = p.balances[asset].Sub(cost)

	order := domain.LiveOrder{
		ID:         clientID(intent),
		ExchangeID: uuid.New().String(),
		Symbol:     intent.Symbol,
		Side:       intent.Side,
		Type:       intent.Type,
		Price:      intent.Price,
		Quantity:   intent.Quantity,
		Status:     domain.StatusOpen,
		PlacedAt:   time.Now().UTC(),
	}
	p.open[order.ExchangeID] = order

	legs := make([]domain.LiveOrder, 0, len(chained))
	for _, c := range chained {
		leg := domain.LiveOrder{
			ID:          clientID(c),
			ExchangeID:  uuid.New().String(),
			Symbol:      c.Symbol,
			Side:        c.Side,
			Type:        c.Type,
			Price:       c.Price,
			Quantity:    c.Quantity,
			Status:      domain.StatusPendingCreation,
			GroupID:     c.GroupID,
			TriggeredBy: order.ID,
		}
		p.chained[order.ExchangeID] = append(p.chained[order.ExchangeID], leg)
		legs = append(legs, leg)
	}
	return order, legs, nil
}

func clientID(intent domain.OrderIntent) string {
	if intent.ID != "" {
		return intent.ID
	}
	return uuid.New().String()
}

func (p *Paper) CancelOrder(ctx context.Context, exchangeID string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("exchange.CancelOrder: rate wait: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelErr != nil {
		return fmt.Errorf("exchange.CancelOrder: %w", p.cancelErr)
	}
	order, ok := p.open[exchangeID]
	if !ok {
		return fmt.Errorf("exchange.CancelOrder: unknown order %q", exchangeID)
	}
	delete(p.open, exchangeID)
	delete(p.chained, exchangeID)

	asset := p.reserveAsset(order.Side)
	if order.GroupID != "" {
		if _, ok := p.groupLive[order.GroupID]; ok {
			p.releaseGroupLeg(order.GroupID, asset, decimal.Zero)
			return nil
		}
	}
	p.balances[asset] = p.balances[asset].Add(domain.OrderIntent{
		Side: order.Side, Price: order.Price, Quantity: order.Quantity,
	}.Cost())
	return nil
}

// releaseGroupLeg descuenta un leg vivo del grupo y consume `used` de su
// reserva compartida; el remanente se libera cuando cae el último leg.
func (p *Paper) releaseGroupLeg(groupID, asset string, used decimal.Decimal) {
	rem := p.groupReserved[groupID].Sub(used)
	if rem.IsNegative() {
		rem = decimal.Zero
	}
	n := p.groupLive[groupID] - 1
	if n <= 0 {
		p.balances[asset] = p.balances[asset].Add(rem)
		delete(p.groupReserved, groupID)
		delete(p.groupLive, groupID)
		return
	}
	p.groupReserved[groupID] = rem
	p.groupLive[groupID] = n
}

// RecordFill settles an open order as filled: the reserved balance converts
// into the received asset, a trade hits the tape, and the order's chained
// legs become open orders. Returns the filled order.
func (p *Paper) RecordFill(exchangeID string) (domain.LiveOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.open[exchangeID]
	if !ok {
		return domain.LiveOrder{}, fmt.Errorf("exchange.RecordFill: unknown order %q", exchangeID)
	}
	delete(p.open, exchangeID)

	if order.Side == domain.SideBuy {
		p.balances[p.market.BaseAsset()] = p.balances[p.market.BaseAsset()].Add(order.Quantity)
	} else {
		p.balances[p.market.QuoteAsset()] = p.balances[p.market.QuoteAsset()].Add(order.Price.Mul(order.Quantity))
	}

	now := time.Now().UTC()
	order.Status = domain.StatusFilled
	order.FilledAt = &now
	p.trades = append(p.trades, domain.Trade{
		Symbol:     order.Symbol,
		Price:      order.Price,
		Quantity:   order.Quantity,
		ExecutedAt: now,
	})

	// El fill de un leg OCO consume su parte de la reserva compartida.
	if order.GroupID != "" {
		if _, ok := p.groupLive[order.GroupID]; ok {
			used := domain.OrderIntent{Side: order.Side, Price: order.Price, Quantity: order.Quantity}.Cost()
			p.releaseGroupLeg(order.GroupID, p.reserveAsset(order.Side), used)
		}
	}

	p.promoteChained(exchangeID)
	return order, nil
}

// promoteChained abre los legs retenidos de una orden recién llenada. Los
// legs sueltos reservan individualmente; los de un grupo OCO reservan una
// sola vez entre ambos, así el par stop/take-profit convive en el venue.
func (p *Paper) promoteChained(exchangeID string) {
	pairs := make(map[string][]domain.LiveOrder)
	for _, leg := range p.chained[exchangeID] {
		if leg.GroupID != "" {
			pairs[leg.GroupID] = append(pairs[leg.GroupID], leg)
			continue
		}
		// La reserva del leg de venta sale del base recién recibido.
		asset := p.reserveAsset(leg.Side)
		cost := domain.OrderIntent{Side: leg.Side, Price: leg.Price, Quantity: leg.Quantity}.Cost()
		if cost.GreaterThan(p.balances[asset]) {
			continue
		}
		p.balances[asset] = p.balances[asset].Sub(cost)
		leg.Status = domain.StatusOpen
		p.open[leg.ExchangeID] = leg
	}

	for groupID, legs := range pairs {
		asset := p.reserveAsset(legs[0].Side)
		cost := decimal.Zero
		for _, leg := range legs {
			if c := (domain.OrderIntent{Side: leg.Side, Price: leg.Price, Quantity: leg.Quantity}).Cost(); c.GreaterThan(cost) {
				cost = c
			}
		}
		// Sin fondos para la reserva compartida: el grupo entero se
		// descarta, nunca medio par.
		if cost.GreaterThan(p.balances[asset]) {
			continue
		}
		p.balances[asset] = p.balances[asset].Sub(cost)
		p.groupReserved[groupID] = cost
		p.groupLive[groupID] = len(legs)
		for _, leg := range legs {
			leg.Status = domain.StatusOpen
			p.open[leg.ExchangeID] = leg
		}
	}
	delete(p.chained, exchangeID)
}

// AppendTrade añade un trade externo a la cinta (para tests de offline fills).
func (p *Paper) AppendTrade(t domain.Trade) {
	p.mu.Lock()
	p.trades = append(p.trades, t)
	p.mu.Unlock()
}

func (p *Paper) reserveAsset(side domain.Side) string {
	if side == domain.SideBuy {
		return p.market.QuoteAsset()
	}
	return p.market.BaseAsset()
}
