// Package confirmation holds precision signals that wait for the next 5m
// close before they can be acted on.
package confirmation

import (
	"sort"
	"sync"
	"time"

	"binance-signal-engine/internal/binance"
	"binance-signal-engine/internal/strategy"
)

// Outcome is the result of resolving or evicting a pending entry
type Outcome string

const (
	OutcomeNone     Outcome = ""         // nothing was pending
	OutcomeAccepted Outcome = "accepted" // bullish 5m close, promoted
	OutcomeRejected Outcome = "rejected" // non-bullish 5m close, discarded
	OutcomeExpired  Outcome = "expired"  // no close observed in time
)

// Entry is one pending candidate
type Entry struct {
	Symbol    string          `json:"symbol"`
	Signal    strategy.Signal `json:"signal"`
	CreatedAt time.Time       `json:"created_at"`
}

// Gate stores at most one pending entry per symbol
type Gate struct {
	mu      sync.Mutex
	pending map[string]Entry
	now     func() time.Time
}

// NewGate creates an empty gate using the wall clock
func NewGate() *Gate {
	return NewGateWithClock(time.Now)
}

// NewGateWithClock creates an empty gate with an injected clock
func NewGateWithClock(now func() time.Time) *Gate {
	return &Gate{
		pending: make(map[string]Entry),
		now:     now,
	}
}

// Hold stores sig as the pending candidate for its symbol, replacing any
// previous one. It reports whether an entry was replaced.
func (g *Gate) Hold(sig strategy.Signal) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, replaced := g.pending[sig.Symbol]
	g.pending[sig.Symbol] = Entry{
		Symbol:    sig.Symbol,
		Signal:    sig,
		CreatedAt: g.now(),
	}
	return replaced
}

// Resolve consumes the pending entry for symbol against a closed 5m candle.
// A bullish close returns the promoted signal; anything else discards it.
// The entry is removed in both cases, so a second call is a no-op.
func (g *Gate) Resolve(symbol string, closed binance.Kline) (*strategy.Signal, Outcome) {
	g.mu.Lock()
	entry, ok := g.pending[symbol]
	if ok {
		delete(g.pending, symbol)
	}
	g.mu.Unlock()

	if !ok {
		return nil, OutcomeNone
	}
	if !closed.IsBullish() {
		return nil, OutcomeRejected
	}

	promoted := entry.Signal
	promoted.Tier = strategy.TierPrecisionMTF
	promoted.Actionable = true
	promoted.RequiresConfirmation = false
	return &promoted, OutcomeAccepted
}

// Evict removes entries older than maxAge and returns them oldest first
func (g *Gate) Evict(maxAge time.Duration) []Entry {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	var evicted []Entry
	for symbol, entry := range g.pending {
		if now.Sub(entry.CreatedAt) >= maxAge {
			evicted = append(evicted, entry)
			delete(g.pending, symbol)
		}
	}
	sortEntries(evicted)
	return evicted
}

// Pending returns the entry held for symbol
func (g *Gate) Pending(symbol string) (Entry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.pending[symbol]
	return entry, ok
}

// Len returns the number of pending entries
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Entries returns all pending entries oldest first
func (g *Gate) Entries() []Entry {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Entry, 0, len(g.pending))
	for _, entry := range g.pending {
		out = append(out, entry)
	}
	sortEntries(out)
	return out
}

// Restore replaces the pending set with entries
func (g *Gate) Restore(entries []Entry) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pending = make(map[string]Entry, len(entries))
	for _, entry := range entries {
		g.pending[entry.Symbol] = entry
	}
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].Symbol < entries[j].Symbol
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
