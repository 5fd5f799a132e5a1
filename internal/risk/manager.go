package risk

import (
	"errors"
	"fmt"
	"time"

	"binance-signal-engine/config"
)

var (
	ErrPaused            = errors.New("trading is paused")
	ErrMaxPositions      = errors.New("max open positions reached")
	ErrDuplicatePosition = errors.New("symbol already has an open position")
	ErrSymbolCooldown    = errors.New("symbol is in loss cooldown")
)

// Portfolio is the read view of open positions the gates need
type Portfolio interface {
	OpenPositionCount() int
	HasOpenPosition(symbol string) bool
}

// CooldownChecker reports whether a symbol may be traded at now
type CooldownChecker interface {
	CanTrade(symbol string, now time.Time) (bool, string)
}

// Manager applies the portfolio-level entry gates
type Manager struct {
	portfolio Portfolio
	cooldown  CooldownChecker
	now       func() time.Time
}

// NewManager creates a gate manager over portfolio and cooldown
func NewManager(portfolio Portfolio, cooldown CooldownChecker) *Manager {
	return &Manager{
		portfolio: portfolio,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// WithClock replaces the clock used for cooldown checks
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// CanOpenPosition checks, in order, pause, position limit, duplicate symbol
// and loss cooldown. It returns nil when an entry on symbol may proceed.
func (m *Manager) CanOpenPosition(symbol string, s config.TradingSettings) error {
	if s.Paused {
		return ErrPaused
	}

	if open := m.portfolio.OpenPositionCount(); open >= s.MaxOpenPositions {
		return fmt.Errorf("%w (%d/%d)", ErrMaxPositions, open, s.MaxOpenPositions)
	}

	if m.portfolio.HasOpenPosition(symbol) {
		return fmt.Errorf("%s: %w", symbol, ErrDuplicatePosition)
	}

	if m.cooldown != nil {
		if ok, reason := m.cooldown.CanTrade(symbol, m.now()); !ok {
			return fmt.Errorf("%w: %s", ErrSymbolCooldown, reason)
		}
	}

	return nil
}

// GateReason returns a short metric label for a gate error
func GateReason(err error) string {
	switch {
	case errors.Is(err, ErrPaused):
		return "paused"
	case errors.Is(err, ErrMaxPositions):
		return "max_positions"
	case errors.Is(err, ErrDuplicatePosition):
		return "duplicate"
	case errors.Is(err, ErrSymbolCooldown):
		return "cooldown"
	case errors.Is(err, ErrInvalidRisk):
		return "invalid_risk"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	default:
		return "other"
	}
}
