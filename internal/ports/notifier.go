package ports

import (
	"context"

	"github.com/alejandrodnm/ladderbot/internal/domain"
)

// Notifier presenta el estado del ladder al usuario.
type Notifier interface {
	// NotifyLadder muestra las órdenes vivas tras un ciclo de reconciliación.
	// En la implementación de consola, imprime una tabla formateada.
	NotifyLadder(ctx context.Context, symbol string, orders []domain.LiveOrder, summary CycleSummary) error
}
