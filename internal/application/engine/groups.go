package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/alejandrodnm/ladderbot/internal/domain"
	"github.com/alejandrodnm/ladderbot/internal/ports"
)

// GroupRegistry owns the live OCO groups of a trading session. Teardown is
// driven by an explicit termination event, not by implicit mutation: when any
// member fills or is cancelled, the surviving siblings are cancelled through
// the exchange port.
type GroupRegistry struct {
	mu      sync.Mutex
	groups  map[string]*domain.OCOGroup // group ID → group
	byOrder map[string]string           // member order ID → group ID
}

// NewGroupRegistry crea un registro vacío.
func NewGroupRegistry() *GroupRegistry {
	return &GroupRegistry{
		groups:  make(map[string]*domain.OCOGroup),
		byOrder: make(map[string]string),
	}
}

// NewGroup registers a fresh group for the given entry order and member IDs.
func (r *GroupRegistry) NewGroup(entryID string, memberIDs []string) *domain.OCOGroup {
	g := &domain.OCOGroup{
		ID:      uuid.New().String(),
		EntryID: entryID,
		Members: append([]string(nil), memberIDs...),
	}
	r.mu.Lock()
	r.groups[g.ID] = g
	for _, id := range memberIDs {
		r.byOrder[id] = g.ID
	}
	r.mu.Unlock()
	return g
}

// Track añade un miembro a un grupo existente (usado al materializar legs).
func (r *GroupRegistry) Track(groupID, orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	if !ok {
		return
	}
	if !g.HasMember(orderID) {
		g.Members = append(g.Members, orderID)
	}
	r.byOrder[orderID] = groupID
}

// GroupOf returns the group an order belongs to, or nil.
func (r *GroupRegistry) GroupOf(orderID string) *domain.OCOGroup {
	r.mu.Lock()
	defer r.mu.Unlock()
	gid, ok := r.byOrder[orderID]
	if !ok {
		return nil
	}
	return r.groups[gid]
}

// OnOrderTerminated tears down the order's group: every surviving sibling is
// cancelled on the exchange and marked cancelled in the store. A cancellation
// failure for one sibling is logged and does not block the others; the group
// is marked done either way so teardown never runs twice.
func (r *GroupRegistry) OnOrderTerminated(ctx context.Context, orderID string, exchange ports.Exchange, store ports.OrderStore) {
	r.mu.Lock()
	gid, ok := r.byOrder[orderID]
	if !ok {
		r.mu.Unlock()
		return
	}
	g := r.groups[gid]
	if g == nil || g.Done {
		r.mu.Unlock()
		return
	}
	g.Done = true
	siblings := g.Siblings(orderID)
	r.mu.Unlock()

	orders, err := store.GetOrdersByGroup(ctx, gid)
	if err != nil {
		slog.Warn("engine: load group orders for teardown", "group", gid, "err", err)
	}
	byID := make(map[string]domain.LiveOrder, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}

	for _, sibID := range siblings {
		sib, tracked := byID[sibID]
		if tracked && sib.Status.Terminal() {
			continue
		}
		if tracked && sib.ExchangeID != "" {
			if err := exchange.CancelOrder(ctx, sib.ExchangeID); err != nil {
				slog.Warn("engine: cancel OCO sibling", "group", gid, "order", sibID, "err", err)
				continue
			}
		}
		if err := store.UpdateOrderStatus(ctx, sibID, domain.StatusCancelled, timeNow()); err != nil {
			slog.Warn("engine: mark OCO sibling cancelled", "group", gid, "order", sibID, "err", err)
		}
	}

	r.mu.Lock()
	for _, id := range g.Members {
		delete(r.byOrder, id)
	}
	delete(r.groups, gid)
	r.mu.Unlock()

	slog.Debug("engine: OCO group torn down", "group", gid, "trigger", orderID, "siblings", len(siblings))
}

// Abandon drops a half-created group without touching the exchange. Used when
// chained-order construction is cancelled mid-way and the created legs have
// already been rolled back by the caller.
func (r *GroupRegistry) Abandon(groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	if !ok {
		return
	}
	for _, id := range g.Members {
		delete(r.byOrder, id)
	}
	delete(r.groups, groupID)
}
