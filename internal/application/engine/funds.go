package engine

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ladderbot/internal/domain"
)

// FundsTracker is the per-session view of spendable balance. It replaces any
// process-wide funds state: one tracker is created per exchange session,
// passed by reference into reconciliation, and cleared on teardown.
//
// The read balance → plan → reserve → submit sequence must happen under a
// single holder of the tracker's lock-protected methods so that two cycles
// triggered by rapid-fire fill notifications cannot both observe the same
// stale balance and both spend it.
type FundsTracker struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal // asset → available
	closed   bool
}

// NewFundsTracker crea un tracker vacío para una sesión de exchange.
func NewFundsTracker() *FundsTracker {
	return &FundsTracker{balances: make(map[string]decimal.Decimal)}
}

// Sync overwrites the tracked balance for an asset with a fresh exchange
// observation. Called once at the start of each reconciliation cycle.
func (f *FundsTracker) Sync(asset string, available decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.balances[asset] = available
}

// Available returns the currently spendable balance for an asset.
func (f *FundsTracker) Available(asset string) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[asset]
}

// Reserve deducts amount from the asset's balance before an order is
// submitted. Fails with domain.ErrInsufficientFunds when the balance does not
// cover it, leaving the balance untouched.
func (f *FundsTracker) Reserve(asset string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("engine.FundsTracker.Reserve: negative amount %s %s", amount, asset)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("engine.FundsTracker.Reserve: tracker closed")
	}
	available := f.balances[asset]
	if amount.GreaterThan(available) {
		return fmt.Errorf("engine.FundsTracker.Reserve: %s %s > available %s: %w",
			amount, asset, available, domain.ErrInsufficientFunds)
	}
	f.balances[asset] = available.Sub(amount)
	return nil
}

// Release returns a previously reserved amount, e.g. after a failed
// submission or a cancellation within the same cycle.
func (f *FundsTracker) Release(asset string, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || amount.IsNegative() {
		return
	}
	f.balances[asset] = f.balances[asset].Add(amount)
}

// Close clears all balances. The session's funds view must not leak into a
// subsequent session reusing the same exchange identity.
func (f *FundsTracker) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances = make(map[string]decimal.Decimal)
	f.closed = true
}
