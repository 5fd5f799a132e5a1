package circuit

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// BreakerState represents the per-symbol breaker state
type BreakerState string

const (
	StateClosed BreakerState = "closed" // Normal operation
	StateOpen   BreakerState = "open"   // Entries blocked until expiry
)

// LossCooldown blocks re-entry on a symbol for a fixed window after a
// losing trade. Entries expire by time; an expiry at or before now reads
// as closed.
type LossCooldown struct {
	expiries map[string]time.Time
	mu       sync.RWMutex
	onTrip   func(symbol string, until time.Time)
}

// NewLossCooldown creates an empty cooldown table
func NewLossCooldown() *LossCooldown {
	return &LossCooldown{
		expiries: make(map[string]time.Time),
	}
}

// OnTrip sets callback for when a symbol enters cooldown
func (lc *LossCooldown) OnTrip(handler func(symbol string, until time.Time)) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.onTrip = handler
}

// Trip blocks symbol until the given time
func (lc *LossCooldown) Trip(symbol string, until time.Time) {
	lc.mu.Lock()
	lc.expiries[symbol] = until
	handler := lc.onTrip
	lc.mu.Unlock()

	if handler != nil {
		handler(symbol, until)
	}
}

// RecordClose trips the breaker for symbol when pnl is negative. It reports
// whether the breaker tripped.
func (lc *LossCooldown) RecordClose(symbol string, pnl float64, now time.Time, cooldown time.Duration) bool {
	// NaN must not trip or clear anything
	if math.IsNaN(pnl) || pnl >= 0 || cooldown <= 0 {
		return false
	}
	lc.Trip(symbol, now.Add(cooldown))
	return true
}

// CanTrade checks if entries on symbol are allowed at now
func (lc *LossCooldown) CanTrade(symbol string, now time.Time) (bool, string) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()

	until, ok := lc.expiries[symbol]
	if !ok || !now.Before(until) {
		return true, ""
	}
	return false, fmt.Sprintf("loss cooldown active for %s, remaining: %v",
		symbol, until.Sub(now).Round(time.Second))
}

// State returns the breaker state of symbol at now
func (lc *LossCooldown) State(symbol string, now time.Time) BreakerState {
	if ok, _ := lc.CanTrade(symbol, now); ok {
		return StateClosed
	}
	return StateOpen
}

// Expiry returns the stored expiry for symbol, expired or not
func (lc *LossCooldown) Expiry(symbol string) (time.Time, bool) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	until, ok := lc.expiries[symbol]
	return until, ok
}

// Prune drops expired entries and returns how many were removed
func (lc *LossCooldown) Prune(now time.Time) int {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	removed := 0
	for symbol, until := range lc.expiries {
		if !now.Before(until) {
			delete(lc.expiries, symbol)
			removed++
		}
	}
	return removed
}

// ForceReset clears the cooldown of one symbol
func (lc *LossCooldown) ForceReset(symbol string) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	delete(lc.expiries, symbol)
}

// Snapshot returns a copy of all stored expiries
func (lc *LossCooldown) Snapshot() map[string]time.Time {
	lc.mu.RLock()
	defer lc.mu.RUnlock()

	out := make(map[string]time.Time, len(lc.expiries))
	for symbol, until := range lc.expiries {
		out[symbol] = until
	}
	return out
}

// Restore replaces all expiries
func (lc *LossCooldown) Restore(expiries map[string]time.Time) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.expiries = make(map[string]time.Time, len(expiries))
	for symbol, until := range expiries {
		lc.expiries[symbol] = until
	}
}

// GetStats returns the symbols currently blocked with their remaining time
func (lc *LossCooldown) GetStats(now time.Time) map[string]interface{} {
	lc.mu.RLock()
	defer lc.mu.RUnlock()

	blocked := make(map[string]string)
	for symbol, until := range lc.expiries {
		if now.Before(until) {
			blocked[symbol] = until.Sub(now).Round(time.Second).String()
		}
	}
	return map[string]interface{}{
		"blocked_symbols": blocked,
		"tracked":         len(lc.expiries),
	}
}
