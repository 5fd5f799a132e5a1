// Package state owns the process-wide trading state: settings, balance,
// open positions, closed trade ledger, price cache and per-symbol
// serialization.
package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"binance-signal-engine/config"
	"binance-signal-engine/internal/circuit"
	"binance-signal-engine/internal/confirmation"
)

var (
	// ErrPositionNotFound is returned when an id is not among the open positions
	ErrPositionNotFound = errors.New("position not found")
	// ErrSymbolAlreadyOpen is returned when a second position is added for a symbol
	ErrSymbolAlreadyOpen = errors.New("symbol already has an open position")
)

// PriceQuote is the latest observed price for a symbol
type PriceQuote struct {
	Price     float64   `json:"price"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot is the persisted form of BotState, settings excluded
type Snapshot struct {
	Balance              float64               `json:"balance"`
	ActivePositions      []*Position           `json:"active_positions"`
	TradeHistory         []*Position           `json:"trade_history"`
	PendingConfirmations []confirmation.Entry  `json:"pending_confirmations"`
	RecentlyLostSymbols  map[string]time.Time  `json:"recently_lost_symbols"`
	PriceCache           map[string]PriceQuote `json:"price_cache"`
	TradeIDCounter       int64                 `json:"trade_id_counter"`
	SavedAt              time.Time             `json:"saved_at"`
}

// Stats summarizes the ledger for the API
type Stats struct {
	Balance       float64 `json:"balance"`
	OpenPositions int     `json:"open_positions"`
	ClosedTrades  int     `json:"closed_trades"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
}

// BotState is the single owned state container. All access goes through
// its methods; positions handed out are copies.
type BotState struct {
	mu             sync.RWMutex
	settings       config.TradingSettings
	balance        float64
	active         []*Position
	history        []*Position
	prices         map[string]PriceQuote
	tradeIDCounter int64

	cooldown      *circuit.LossCooldown
	confirmations *confirmation.Gate

	locksMu     sync.Mutex
	symbolLocks map[string]*sync.Mutex
}

// New creates a state container seeded with settings and the initial balance
func New(settings config.TradingSettings) *BotState {
	return NewWithGate(settings, confirmation.NewGate())
}

// NewWithGate creates a state container around an existing confirmation gate
func NewWithGate(settings config.TradingSettings, gate *confirmation.Gate) *BotState {
	return &BotState{
		settings:      settings,
		balance:       settings.InitialBalance,
		prices:        make(map[string]PriceQuote),
		cooldown:      circuit.NewLossCooldown(),
		confirmations: gate,
		symbolLocks:   make(map[string]*sync.Mutex),
	}
}

// LockSymbol serializes open, monitor and close for one symbol. The
// returned func releases the lock.
func (s *BotState) LockSymbol(symbol string) func() {
	s.locksMu.Lock()
	l, ok := s.symbolLocks[symbol]
	if !ok {
		l = &sync.Mutex{}
		s.symbolLocks[symbol] = l
	}
	s.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// Cooldown returns the per-symbol loss cooldown table
func (s *BotState) Cooldown() *circuit.LossCooldown {
	return s.cooldown
}

// Confirmations returns the pending confirmation gate
func (s *BotState) Confirmations() *confirmation.Gate {
	return s.confirmations
}

// Settings returns a copy of the current settings
func (s *BotState) Settings() config.TradingSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// ReplaceSettings swaps the settings wholesale
func (s *BotState) ReplaceSettings(settings config.TradingSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// SetPaused toggles the administrative pause
func (s *BotState) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Paused = paused
}

// Balance returns the available capital
func (s *BotState) Balance() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance
}

// NextTradeID returns the next position id
func (s *BotState) NextTradeID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tradeIDCounter++
	return s.tradeIDCounter
}

// OpenPositionCount returns the number of open positions
func (s *BotState) OpenPositionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// HasOpenPosition reports whether symbol has an open position
func (s *BotState) HasOpenPosition(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexBySymbol(symbol) >= 0
}

// ActivePositions returns copies of the open positions in entry order
func (s *BotState) ActivePositions() []*Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Position, len(s.active))
	for i, p := range s.active {
		out[i] = p.Clone()
	}
	return out
}

// Position returns a copy of the open position with id
func (s *BotState) Position(id int64) (*Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexByID(id); i >= 0 {
		return s.active[i].Clone(), true
	}
	return nil, false
}

// PositionBySymbol returns a copy of the open position for symbol
func (s *BotState) PositionBySymbol(symbol string) (*Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexBySymbol(symbol); i >= 0 {
		return s.active[i].Clone(), true
	}
	return nil, false
}

// AddPosition records a filled position and debits its cost. It fails if
// the symbol already has an open position.
func (s *BotState) AddPosition(p *Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexBySymbol(p.Symbol) >= 0 {
		return fmt.Errorf("%s: %w", p.Symbol, ErrSymbolAlreadyOpen)
	}
	if p.ID > s.tradeIDCounter {
		s.tradeIDCounter = p.ID
	}
	p.Status = StatusFilled
	s.active = append(s.active, p.Clone())
	s.balance -= p.TotalCostUSD
	return nil
}

// UpdatePosition applies fn to the open position with id under the state
// lock and returns the updated copy.
func (s *BotState) UpdatePosition(id int64, fn func(p *Position)) (*Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexByID(id)
	if i < 0 {
		return nil, fmt.Errorf("position %d: %w", id, ErrPositionNotFound)
	}
	fn(s.active[i])
	return s.active[i].Clone(), nil
}

// ApplyPartialExit removes qty from an open position sold at price. The
// cost basis shrinks proportionally and the proceeds are credited.
func (s *BotState) ApplyPartialExit(id int64, qty, price float64) (*Position, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexByID(id)
	if i < 0 {
		return nil, 0, fmt.Errorf("position %d: %w", id, ErrPositionNotFound)
	}
	p := s.active[i]
	if qty <= 0 || qty >= p.Quantity {
		return nil, 0, fmt.Errorf("partial quantity %.8f out of range for position %d", qty, id)
	}

	realized := (price - p.AverageEntryPrice) * qty
	costReleased := p.TotalCostUSD * qty / p.Quantity

	p.Quantity -= qty
	p.TotalCostUSD -= costReleased
	p.RealizedPartialPnL += realized
	p.PartialTaken = true
	s.balance += costReleased + realized

	return p.Clone(), realized, nil
}

// ClosePosition moves the open position with id to the trade history,
// settles it at exitPrice and credits cost plus pnl.
func (s *BotState) ClosePosition(id int64, exitPrice float64, at time.Time, reason string) (*Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexByID(id)
	if i < 0 {
		return nil, fmt.Errorf("position %d: %w", id, ErrPositionNotFound)
	}
	p := s.active[i]
	s.active = append(s.active[:i], s.active[i+1:]...)

	p.Settle(exitPrice, at, reason)
	s.balance += p.TotalCostUSD + p.PnL
	s.history = append(s.history, p)

	return p.Clone(), nil
}

// TradeHistory returns up to limit of the most recent closed trades, newest
// first. A limit of zero or less returns all of them.
func (s *BotState) TradeHistory(limit int) []*Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*Position, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.history[i].Clone())
	}
	return out
}

// UpdatePrice caches the latest price for symbol
func (s *BotState) UpdatePrice(symbol string, price float64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = PriceQuote{Price: price, UpdatedAt: at}
}

// LastPrice returns the cached price for symbol
func (s *BotState) LastPrice(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.prices[symbol]
	if !ok || q.Price <= 0 {
		return 0, false
	}
	return q.Price, true
}

// Prices returns a copy of the price cache
func (s *BotState) Prices() map[string]PriceQuote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]PriceQuote, len(s.prices))
	for k, v := range s.prices {
		out[k] = v
	}
	return out
}

// Stats summarizes balance and closed trades
func (s *BotState) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Balance:       s.balance,
		OpenPositions: len(s.active),
		ClosedTrades:  len(s.history),
	}
	for _, p := range s.history {
		total := p.PnL + p.RealizedPartialPnL
		st.TotalPnL += total
		if total > 0 {
			st.Wins++
		} else if total < 0 {
			st.Losses++
		}
	}
	if st.ClosedTrades > 0 {
		st.WinRate = float64(st.Wins) / float64(st.ClosedTrades) * 100
	}
	return st
}

// Snapshot captures everything but settings for persistence
func (s *BotState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Balance:              s.balance,
		ActivePositions:      make([]*Position, len(s.active)),
		TradeHistory:         make([]*Position, len(s.history)),
		PendingConfirmations: s.confirmations.Entries(),
		RecentlyLostSymbols:  s.cooldown.Snapshot(),
		PriceCache:           make(map[string]PriceQuote, len(s.prices)),
		TradeIDCounter:       s.tradeIDCounter,
		SavedAt:              time.Now(),
	}
	for i, p := range s.active {
		snap.ActivePositions[i] = p.Clone()
	}
	for i, p := range s.history {
		snap.TradeHistory[i] = p.Clone()
	}
	for k, v := range s.prices {
		snap.PriceCache[k] = v
	}
	return snap
}

// Restore replaces the state with snap. Duplicate symbols among the open
// positions keep the first occurrence.
func (s *BotState) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balance = snap.Balance
	s.tradeIDCounter = snap.TradeIDCounter

	s.active = s.active[:0]
	seen := make(map[string]bool, len(snap.ActivePositions))
	for _, p := range snap.ActivePositions {
		if p == nil || seen[p.Symbol] {
			continue
		}
		seen[p.Symbol] = true
		s.active = append(s.active, p.Clone())
		if p.ID > s.tradeIDCounter {
			s.tradeIDCounter = p.ID
		}
	}

	s.history = s.history[:0]
	for _, p := range snap.TradeHistory {
		if p == nil {
			continue
		}
		s.history = append(s.history, p.Clone())
		if p.ID > s.tradeIDCounter {
			s.tradeIDCounter = p.ID
		}
	}

	s.prices = make(map[string]PriceQuote, len(snap.PriceCache))
	for k, v := range snap.PriceCache {
		s.prices[k] = v
	}

	s.cooldown.Restore(snap.RecentlyLostSymbols)
	s.confirmations.Restore(snap.PendingConfirmations)
}

func (s *BotState) indexByID(id int64) int {
	for i, p := range s.active {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s *BotState) indexBySymbol(symbol string) int {
	for i, p := range s.active {
		if p.Symbol == symbol {
			return i
		}
	}
	return -1
}
