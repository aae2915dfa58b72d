package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the side of the book an order rests on.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType distinguishes how an order executes.
type OrderType string

const (
	TypeBuyLimit  OrderType = "BUY_LIMIT"
	TypeSellLimit OrderType = "SELL_LIMIT"
	TypeBuyMarket OrderType = "BUY_MARKET"
	TypeStopLoss  OrderType = "STOP_LOSS"
)

// OrderStatus represents the lifecycle of a tracked order.
type OrderStatus string

const (
	StatusPendingCreation OrderStatus = "PENDING_CREATION"
	StatusOpen            OrderStatus = "OPEN"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
)

// Terminal reports whether the status ends the order's lifecycle.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled
}

// OrderIntent is a planned but not-yet-submitted order. Intents are ephemeral:
// the planner recomputes them on every reconciliation cycle.
type OrderIntent struct {
	ID       string // client order ID; the venue adopts it when set
	Symbol   string
	Side     Side
	Type     OrderType
	Price    decimal.Decimal
	Quantity decimal.Decimal
	GroupID  string // OCO group for chained legs, empty otherwise
}

// Cost returns the balance the intent reserves when submitted: quote for buys,
// base for sells.
func (i OrderIntent) Cost() decimal.Decimal {
	if i.Side == SideBuy {
		return i.Price.Mul(i.Quantity)
	}
	return i.Quantity
}

// LiveOrder is an exchange-observed order tracked across cycles.
type LiveOrder struct {
	ID          string // local UUID
	ExchangeID  string // exchange-assigned ID
	Symbol      string
	Side        Side
	Type        OrderType
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	Status      OrderStatus
	GroupID     string // OCO group, empty when ungrouped
	TriggeredBy string // entry order ID for chained exits, empty otherwise
	PlacedAt    time.Time
	FilledAt    *time.Time
}

// Trade is a public trade used for offline-fill disambiguation.
type Trade struct {
	Symbol     string
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	ExecutedAt time.Time
}
