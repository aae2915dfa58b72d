package storage

// sqlite.go — persistencia del estado de órdenes entre ciclos y reinicios.
//
// Estrategia:
//   - `orders`: una fila por orden trackeada (UPSERT por id local). Precios y
//     cantidades como TEXT para no perder precisión decimal.
//   - `cycles`: resumen ligero por ciclo de reconciliación. Siempre 1 fila.
//   - Prune automático al arrancar: cycles > 30d, órdenes terminales > 14d.
//     Las órdenes abiertas nunca se purgan: son la base de la detección de
//     offline fills tras un restart.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/ladderbot/internal/domain"
	"github.com/alejandrodnm/ladderbot/internal/ports"
)

const schema = `
-- Una fila por orden trackeada
CREATE TABLE IF NOT EXISTS orders (
    id           TEXT PRIMARY KEY,
    exchange_id  TEXT NOT NULL DEFAULT '',
    symbol       TEXT NOT NULL,
    side         TEXT NOT NULL,
    type         TEXT NOT NULL,
    price        TEXT NOT NULL,
    quantity     TEXT NOT NULL,
    status       TEXT NOT NULL,
    group_id     TEXT NOT NULL DEFAULT '',
    triggered_by TEXT NOT NULL DEFAULT '',
    placed_at    DATETIME,
    filled_at    DATETIME
);

-- Resumen ligero por ciclo de reconciliación
CREATE TABLE IF NOT EXISTS cycles (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol        TEXT     NOT NULL,
    ran_at        DATETIME NOT NULL,
    created       INTEGER  NOT NULL DEFAULT 0,
    cancelled     INTEGER  NOT NULL DEFAULT 0,
    kept          INTEGER  NOT NULL DEFAULT 0,
    offline_fills INTEGER  NOT NULL DEFAULT 0,
    buy_depth     INTEGER  NOT NULL DEFAULT 0,
    sell_depth    INTEGER  NOT NULL DEFAULT 0,
    skipped       INTEGER  NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_orders_symbol  ON orders(symbol, status);
CREATE INDEX IF NOT EXISTS idx_orders_group   ON orders(group_id);
CREATE INDEX IF NOT EXISTS idx_orders_trigger ON orders(triggered_by);
CREATE INDEX IF NOT EXISTS idx_cycles_at      ON cycles(ran_at DESC);
`

const (
	retentionCycles = 30 * 24 * time.Hour
	retentionOrders = 14 * 24 * time.Hour // solo órdenes terminales
)

// SQLiteStore implementa ports.OrderStore usando SQLite (pure Go, sin CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveOrder inserta o actualiza una orden trackeada.
func (s *SQLiteStore) SaveOrder(ctx context.Context, o domain.LiveOrder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, exchange_id, symbol, side, type, price, quantity, status, group_id, triggered_by, placed_at, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			exchange_id = excluded.exchange_id,
			status      = excluded.status,
			filled_at   = excluded.filled_at`,
		o.ID, o.ExchangeID, o.Symbol, string(o.Side), string(o.Type),
		o.Price.String(), o.Quantity.String(), string(o.Status),
		o.GroupID, o.TriggeredBy, o.PlacedAt, o.FilledAt,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveOrder: %w", err)
	}
	return nil
}

// UpdateOrderStatus cambia el estado de una orden; registra filled_at cuando
// el nuevo estado es FILLED.
func (s *SQLiteStore) UpdateOrderStatus(ctx context.Context, localID string, status domain.OrderStatus, at time.Time) error {
	var filledAt any
	if status == domain.StatusFilled {
		filledAt = at
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, filled_at = COALESCE(?, filled_at) WHERE id = ?`,
		string(status), filledAt, localID,
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateOrderStatus: %w", err)
	}
	return nil
}

// GetTrackedOrders devuelve las órdenes no terminales del símbolo.
func (s *SQLiteStore) GetTrackedOrders(ctx context.Context, symbol string) ([]domain.LiveOrder, error) {
	return s.queryOrders(ctx,
		`SELECT id, exchange_id, symbol, side, type, price, quantity, status, group_id, triggered_by, placed_at, filled_at
		 FROM orders WHERE symbol = ? AND status IN (?, ?)`,
		symbol, string(domain.StatusOpen), string(domain.StatusPendingCreation),
	)
}

// GetOrdersByGroup devuelve las órdenes de un grupo OCO.
func (s *SQLiteStore) GetOrdersByGroup(ctx context.Context, groupID string) ([]domain.LiveOrder, error) {
	return s.queryOrders(ctx,
		`SELECT id, exchange_id, symbol, side, type, price, quantity, status, group_id, triggered_by, placed_at, filled_at
		 FROM orders WHERE group_id = ?`, groupID,
	)
}

// GetChainedOrders devuelve las órdenes encadenadas a una entrada.
func (s *SQLiteStore) GetChainedOrders(ctx context.Context, triggeredBy string) ([]domain.LiveOrder, error) {
	return s.queryOrders(ctx,
		`SELECT id, exchange_id, symbol, side, type, price, quantity, status, group_id, triggered_by, placed_at, filled_at
		 FROM orders WHERE triggered_by = ?`, triggeredBy,
	)
}

// SaveCycleSummary persiste el resumen de un ciclo — siempre una fila.
func (s *SQLiteStore) SaveCycleSummary(ctx context.Context, c ports.CycleSummary) error {
	skipped := 0
	if c.Skipped {
		skipped = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles (symbol, ran_at, created, cancelled, kept, offline_fills, buy_depth, sell_depth, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Symbol, c.RanAt, c.Created, c.Cancelled, c.Kept, c.OfflineFills, c.BuyDepth, c.SellDepth, skipped,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveCycleSummary: %w", err)
	}
	return nil
}

// Close cierra la conexión limpiamente.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) queryOrders(ctx context.Context, query string, args ...any) ([]domain.LiveOrder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.queryOrders: %w", err)
	}
	defer rows.Close()

	var out []domain.LiveOrder
	for rows.Next() {
		var o domain.LiveOrder
		var side, typ, status, price, quantity string
		var placedAt, filledAt sql.NullTime
		if err := rows.Scan(&o.ID, &o.ExchangeID, &o.Symbol, &side, &typ, &price, &quantity,
			&status, &o.GroupID, &o.TriggeredBy, &placedAt, &filledAt); err != nil {
			return nil, fmt.Errorf("storage.queryOrders: scan: %w", err)
		}
		o.Side = domain.Side(side)
		o.Type = domain.OrderType(typ)
		o.Status = domain.OrderStatus(status)
		if o.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("storage.queryOrders: price %q: %w", price, err)
		}
		if o.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("storage.queryOrders: quantity %q: %w", quantity, err)
		}
		if placedAt.Valid {
			o.PlacedAt = placedAt.Time
		}
		if filledAt.Valid {
			t := filledAt.Time
			o.FilledAt = &t
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// pruneOld borra ciclos y órdenes terminales antiguas.
func (s *SQLiteStore) pruneOld(ctx context.Context) {
	now := time.Now().UTC()
	s.db.ExecContext(ctx, `DELETE FROM cycles WHERE ran_at < ?`, now.Add(-retentionCycles))
	s.db.ExecContext(ctx, `DELETE FROM orders WHERE status IN (?, ?) AND placed_at < ?`,
		string(domain.StatusFilled), string(domain.StatusCancelled), now.Add(-retentionOrders))
}
