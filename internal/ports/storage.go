package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/ladderbot/internal/domain"
)

// OrderStore persiste el estado de las órdenes trackeadas entre ciclos y
// reinicios. El motor de reconciliación lo usa para reconstruir su conjunto
// de órdenes previamente conocidas e inferir offline fills tras un restart.
type OrderStore interface {
	SaveOrder(ctx context.Context, order domain.LiveOrder) error
	UpdateOrderStatus(ctx context.Context, localID string, status domain.OrderStatus, at time.Time) error

	// GetTrackedOrders devuelve todas las órdenes no terminales del símbolo.
	GetTrackedOrders(ctx context.Context, symbol string) ([]domain.LiveOrder, error)

	// GetOrdersByGroup devuelve las órdenes que pertenecen a un grupo OCO.
	GetOrdersByGroup(ctx context.Context, groupID string) ([]domain.LiveOrder, error)

	// GetChainedOrders devuelve las órdenes encadenadas a una entrada.
	GetChainedOrders(ctx context.Context, triggeredBy string) ([]domain.LiveOrder, error)

	// SaveCycleSummary persiste el resumen ligero de un ciclo de reconciliación.
	SaveCycleSummary(ctx context.Context, s CycleSummary) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}

// CycleSummary is the lightweight per-cycle snapshot persisted after each
// reconciliation pass.
type CycleSummary struct {
	Symbol       string
	RanAt        time.Time
	Created      int
	Cancelled    int
	Kept         int
	OfflineFills int
	BuyDepth     int
	SellDepth    int
	Skipped      bool // cycle skipped (stale price)
}
