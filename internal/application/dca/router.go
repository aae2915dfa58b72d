package dca

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/ladderbot/internal/domain"
)

// TriggerMode selects how entry evaluations are triggered.
type TriggerMode string

const (
	// TriggerSignal evaluates entries when the signal collaborator emits a state.
	TriggerSignal TriggerMode = "signal"
	// TriggerPeriodic evaluates entries on a fixed interval.
	TriggerPeriodic TriggerMode = "periodic"
)

// RouterConfig controls signal routing.
type RouterConfig struct {
	Mode TriggerMode

	// Cooldown is the minimum gap between consecutive entry creations
	// (minutes_before_next_buy).
	Cooldown time.Duration

	// Interval drives TriggerPeriodic.
	Interval time.Duration
}

// Router is the state machine mapping an incoming directional signal to
// entry-creation actions. Exits are driven purely by price/fill events, so
// SHORT and VERY_SHORT are deliberate no-ops, never errors.
type Router struct {
	cfg     RouterConfig
	entries *EntryBuilder

	mu        sync.Mutex
	lastEntry time.Time
}

// NewRouter crea el router de señales.
func NewRouter(cfg RouterConfig, entries *EntryBuilder) *Router {
	return &Router{cfg: cfg, entries: entries}
}

// OnSignal routes one evaluated signal state. LONG and VERY_LONG trigger
// entry construction, gated by the cooldown; every other state is inert.
func (r *Router) OnSignal(ctx context.Context, state domain.SignalState) error {
	switch state {
	case domain.SignalLong, domain.SignalVeryLong:
		if !r.cooldownElapsed() {
			slog.Debug("dca: entry cooldown active, skipping", "state", state.String())
			return nil
		}
		created, err := r.entries.CreateEntries(ctx, state)
		if err != nil {
			return err
		}
		if created > 0 {
			r.markEntry()
		}
		return nil

	case domain.SignalNeutral:
		return nil

	case domain.SignalShort, domain.SignalVeryShort:
		// Accepted and intentionally inert: no short entries exist and
		// exits never follow the directional signal.
		slog.Debug("dca: bearish signal ignored", "state", state.String())
		return nil

	default:
		// Unknown states behave like neutral rather than failing the cycle.
		slog.Warn("dca: unsupported signal state treated as no-op", "state", int(state))
		return nil
	}
}

// RunPeriodic drives entries on a fixed interval until the context is
// cancelled. Only used when the trigger mode is TriggerPeriodic; each tick
// behaves like a LONG evaluation and the cooldown still applies.
func (r *Router) RunPeriodic(ctx context.Context) error {
	if r.cfg.Mode != TriggerPeriodic {
		return nil
	}
	interval := r.cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.OnSignal(ctx, domain.SignalLong); err != nil {
				slog.Warn("dca: periodic entry failed", "err", err)
			}
		}
	}
}

func (r *Router) cooldownElapsed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.Cooldown <= 0 || r.lastEntry.IsZero() {
		return true
	}
	return time.Since(r.lastEntry) >= r.cfg.Cooldown
}

func (r *Router) markEntry() {
	r.mu.Lock()
	r.lastEntry = time.Now()
	r.mu.Unlock()
}
