package domain

import "errors"

// Sentinel errors resolved locally by degrading the plan. Transport errors
// from the exchange are wrapped and surfaced per operation instead.
var (
	// ErrInsufficientFunds: the level cannot be funded. Skip it, keep the cycle.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrBelowMarketMinimum: quantity or notional under the exchange minimum.
	ErrBelowMarketMinimum = errors.New("below market minimum")

	// ErrStalePrice: no fresh reference price within the wait budget.
	// The whole cycle is skipped and retried on the next trigger.
	ErrStalePrice = errors.New("stale reference price")
)
