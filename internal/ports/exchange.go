package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ladderbot/internal/domain"
)

// Exchange places, cancels, and observes orders on the trading venue.
type Exchange interface {
	// GetOpenOrders returns all currently open orders for the symbol.
	GetOpenOrders(ctx context.Context, symbol string) ([]domain.LiveOrder, error)

	// GetMarketStatus returns the trading constraints for the symbol.
	GetMarketStatus(ctx context.Context, symbol string) (domain.MarketStatus, error)

	// GetAvailableBalance returns the spendable balance for an asset,
	// excluding amounts already reserved by open orders.
	GetAvailableBalance(ctx context.Context, asset string) (decimal.Decimal, error)

	// GetReferencePrice returns the latest reference price for the symbol.
	GetReferencePrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// GetRecentTrades returns public trades within the given window,
	// newest last. Used to disambiguate offline fills.
	GetRecentTrades(ctx context.Context, symbol string, window time.Duration) ([]domain.Trade, error)

	// CreateOrder submits an order, optionally with chained orders that the
	// venue holds in pending-creation state until the parent fills. The
	// returned slice carries the venue identities of the accepted chained
	// orders, in the same order as the intents.
	CreateOrder(ctx context.Context, intent domain.OrderIntent, chained []domain.OrderIntent) (domain.LiveOrder, []domain.LiveOrder, error)

	// CancelOrder cancels an open order by its exchange ID.
	CancelOrder(ctx context.Context, exchangeID string) error
}
