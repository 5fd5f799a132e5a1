package state

import (
	"time"

	"binance-signal-engine/config"
	"binance-signal-engine/internal/strategy"
)

// PositionStatus is the lifecycle status of a position
type PositionStatus string

const (
	StatusFilled PositionStatus = "FILLED"
	StatusClosed PositionStatus = "CLOSED"
)

// Position is one long spot position from entry fill to close
type Position struct {
	ID     int64  `json:"id"`
	Symbol string `json:"symbol"`

	// Entry facts
	EntryPrice        float64          `json:"entry_price"`
	AverageEntryPrice float64          `json:"average_entry_price"`
	Quantity          float64          `json:"quantity"`
	TargetQuantity    float64          `json:"target_quantity"`
	EntryTime         time.Time        `json:"entry_time"`
	TotalCostUSD      float64          `json:"total_cost_usd"`
	EntrySnapshot     *strategy.Signal `json:"entry_snapshot,omitempty"`
	EntryOrderID      string           `json:"entry_order_id,omitempty"`

	// Risk state
	StopLoss               float64                `json:"stop_loss"`
	TakeProfit             float64                `json:"take_profit"`
	HighestPriceSinceEntry float64                `json:"highest_price_since_entry"`
	InitialStopLoss        float64                `json:"initial_stop_loss"`
	InitialRiskPerUnit     float64                `json:"initial_risk_per_unit"`
	ATRAtEntry             float64                `json:"atr_at_entry"`
	StrategyType           strategy.StrategyType  `json:"strategy_type"`
	ActiveProfile          config.ProfileName     `json:"active_profile"`
	TradeParams            config.TradeParameters `json:"trade_params"`

	// Mid-life exit management
	BreakevenArmed     bool    `json:"breakeven_armed"`
	TrailingTightened  bool    `json:"trailing_tightened"`
	PartialTaken       bool    `json:"partial_taken"`
	RealizedPartialPnL float64 `json:"realized_partial_pnl"`

	Status PositionStatus `json:"status"`

	// Exit facts, set only at close
	ExitPrice  float64    `json:"exit_price,omitempty"`
	ExitTime   *time.Time `json:"exit_time,omitempty"`
	ExitReason string     `json:"exit_reason,omitempty"`
	PnL        float64    `json:"pnl"`
	PnLPct     float64    `json:"pnl_pct"`
}

// IsOpen reports whether the position is still active
func (p *Position) IsOpen() bool {
	return p.Status == StatusFilled
}

// RMultiple returns the open profit at price in units of initial risk
func (p *Position) RMultiple(price float64) float64 {
	if p.InitialRiskPerUnit <= 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.InitialRiskPerUnit
}

// UnrealizedPnL returns the open profit at price
func (p *Position) UnrealizedPnL(price float64) float64 {
	return (price - p.AverageEntryPrice) * p.Quantity
}

// Settle stamps the exit facts. pnl is computed on the remaining quantity
// against the average entry, pnl_pct against the remaining cost basis.
func (p *Position) Settle(exitPrice float64, at time.Time, reason string) {
	p.Status = StatusClosed
	p.ExitPrice = exitPrice
	p.ExitTime = &at
	p.ExitReason = reason
	p.PnL = (exitPrice - p.AverageEntryPrice) * p.Quantity
	if p.TotalCostUSD > 0 {
		p.PnLPct = p.PnL / p.TotalCostUSD * 100
	}
}

// Clone returns a copy safe to hand out of the state container
func (p *Position) Clone() *Position {
	cp := *p
	if p.EntrySnapshot != nil {
		sig := *p.EntrySnapshot
		sig.Checklist = append([]strategy.Condition(nil), p.EntrySnapshot.Checklist...)
		if p.EntrySnapshot.Regime != nil {
			regime := *p.EntrySnapshot.Regime
			sig.Regime = &regime
		}
		cp.EntrySnapshot = &sig
	}
	if p.ExitTime != nil {
		t := *p.ExitTime
		cp.ExitTime = &t
	}
	return &cp
}
