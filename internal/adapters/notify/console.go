package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/ladderbot/internal/domain"
	"github.com/alejandrodnm/ladderbot/internal/ports"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifyLadder imprime el estado del ladder en el modo configurado.
func (c *Console) NotifyLadder(_ context.Context, symbol string, orders []domain.LiveOrder, summary ports.CycleSummary) error {
	if c.table {
		c.printFull(symbol, orders, summary)
		return nil
	}
	c.printCompact(symbol, orders, summary)
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(symbol string, orders []domain.LiveOrder, s ports.CycleSummary) {
	now := time.Now().Format("15:04:05")
	buys, sells := countBySide(orders)
	fmt.Fprintf(c.out, "[%s] %s ladder %db/%ds | +%d -%d =%d | offline fills:%d\n",
		now, symbol, buys, sells, s.Created, s.Cancelled, s.Kept, s.OfflineFills)
}

// printFull imprime la tabla completa de órdenes vivas, ventas primero
// (precio descendente), compras después — como se vería en el book.
func (c *Console) printFull(symbol string, orders []domain.LiveOrder, s ports.CycleSummary) {
	now := time.Now().Format("15:04:05")
	buys, sells := countBySide(orders)
	fmt.Fprintf(c.out, "\n[%s] %s — %d sell / %d buy levels (depth %d/%d)\n",
		now, symbol, sells, buys, s.BuyDepth, s.SellDepth)

	sorted := append([]domain.LiveOrder(nil), orders...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Price.GreaterThan(sorted[j].Price)
	})

	table := tablewriter.NewWriter(c.out)
	table.Header("Side", "Type", "Price", "Quantity", "Status", "Group")

	for _, o := range sorted {
		group := "-"
		if o.GroupID != "" {
			group = o.GroupID[:8]
		}
		table.Append(
			string(o.Side),
			string(o.Type),
			o.Price.String(),
			o.Quantity.String(),
			string(o.Status),
			group,
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "  ciclo: +%d creadas, -%d canceladas, =%d mantenidas, %d offline fills\n\n",
		s.Created, s.Cancelled, s.Kept, s.OfflineFills)
}

func countBySide(orders []domain.LiveOrder) (buys, sells int) {
	for _, o := range orders {
		if o.Side == domain.SideBuy {
			buys++
		} else {
			sells++
		}
	}
	return buys, sells
}
