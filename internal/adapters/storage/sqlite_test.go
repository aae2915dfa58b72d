package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/ladderbot/internal/domain"
	"github.com/alejandrodnm/ladderbot/internal/ports"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleOrder(id string) domain.LiveOrder {
	return domain.LiveOrder{
		ID:         id,
		ExchangeID: "ex-" + id,
		Symbol:     "BTC/USDT",
		Side:       domain.SideBuy,
		Type:       domain.TypeBuyLimit,
		Price:      d("3995.5"),
		Quantity:   d("0.00001251"),
		Status:     domain.StatusOpen,
		PlacedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestSQLiteStore_SaveAndGetTracked(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveOrder(ctx, sampleOrder("a")))
	require.NoError(t, s.SaveOrder(ctx, sampleOrder("b")))

	got, err := s.GetTrackedOrders(ctx, "BTC/USDT")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Los decimales sobreviven el viaje como TEXT sin perder precisión.
	assert.True(t, got[0].Price.Equal(d("3995.5")))
	assert.True(t, got[0].Quantity.Equal(d("0.00001251")))
}

func TestSQLiteStore_SaveOrderUpsert(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	o := sampleOrder("a")
	require.NoError(t, s.SaveOrder(ctx, o))

	o.ExchangeID = "ex-new"
	o.Status = domain.StatusCancelled
	require.NoError(t, s.SaveOrder(ctx, o))

	got, err := s.GetTrackedOrders(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Empty(t, got, "cancelled order must leave the tracked set")
}

func TestSQLiteStore_UpdateOrderStatus(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveOrder(ctx, sampleOrder("a")))
	filledAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateOrderStatus(ctx, "a", domain.StatusFilled, filledAt))

	got, err := s.GetTrackedOrders(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Empty(t, got, "filled order is terminal")
}

func TestSQLiteStore_GetOrdersByGroup(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	stop := sampleOrder("stop")
	stop.GroupID = "g1"
	tp := sampleOrder("tp")
	tp.GroupID = "g1"
	other := sampleOrder("other")

	require.NoError(t, s.SaveOrder(ctx, stop))
	require.NoError(t, s.SaveOrder(ctx, tp))
	require.NoError(t, s.SaveOrder(ctx, other))

	got, err := s.GetOrdersByGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSQLiteStore_GetChainedOrders(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	leg := sampleOrder("leg")
	leg.TriggeredBy = "entry-1"
	leg.Status = domain.StatusPendingCreation
	require.NoError(t, s.SaveOrder(ctx, leg))
	require.NoError(t, s.SaveOrder(ctx, sampleOrder("unrelated")))

	got, err := s.GetChainedOrders(ctx, "entry-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "leg", got[0].ID)
	assert.Equal(t, domain.StatusPendingCreation, got[0].Status)
}

func TestSQLiteStore_SaveCycleSummary(t *testing.T) {
	s := newStore(t)

	err := s.SaveCycleSummary(context.Background(), ports.CycleSummary{
		Symbol:       "BTC/USDT",
		RanAt:        time.Now().UTC(),
		Created:      25,
		Cancelled:    3,
		Kept:         17,
		OfflineFills: 1,
		BuyDepth:     20,
		SellDepth:    5,
	})
	require.NoError(t, err)
}

func TestSQLiteStore_FilledAtRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	o := sampleOrder("a")
	o.GroupID = "g1"
	require.NoError(t, s.SaveOrder(ctx, o))

	filledAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateOrderStatus(ctx, "a", domain.StatusFilled, filledAt))

	got, err := s.GetOrdersByGroup(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].FilledAt)
	assert.True(t, got[0].FilledAt.Equal(filledAt))
}
