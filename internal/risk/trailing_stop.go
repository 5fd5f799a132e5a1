package risk

import (
	"binance-signal-engine/internal/state"
	"binance-signal-engine/internal/strategy"
)

// ExitReason tags why a position closed
type ExitReason string

const (
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitTakeProfit   ExitReason = "TAKE_PROFIT"
	ExitTrailingStop ExitReason = "TRAILING_STOP"
	ExitBreakeven    ExitReason = "BREAKEVEN"
	ExitManual       ExitReason = "MANUAL"
)

// Stop adjustment reasons
const (
	StopIgnitionTrailing = "ignition_trailing"
	StopBreakeven        = "breakeven"
	StopAdaptiveTrailing = "adaptive_trailing"
)

// StopUpdate represents a stop loss update
type StopUpdate struct {
	Reason      string  `json:"reason"`
	OldStopLoss float64 `json:"old_stop_loss"`
	NewStopLoss float64 `json:"new_stop_loss"`
}

// TickDecision is the outcome of evaluating one price tick
type TickDecision struct {
	Exit        bool
	ExitPrice   float64
	Reason      ExitReason
	StopUpdates []StopUpdate

	// PartialQuantity is the raw quantity to scale out, zero for none
	PartialQuantity float64
	// Tightened is set on the tick the trailing multiplier first tightens
	Tightened bool
}

// EvaluateTick updates p's high-water mark and stop for price and decides
// whether it should exit. It mutates p; callers pass the stored position
// under its symbol lock. Stops only move up.
func EvaluateTick(p *state.Position, price float64, ignitionTrailing bool) TickDecision {
	var d TickDecision

	if price > p.HighestPriceSinceEntry {
		p.HighestPriceSinceEntry = price
	}

	if p.StrategyType == strategy.StrategyIgnition && ignitionTrailing {
		trail := p.HighestPriceSinceEntry * (1 - p.TradeParams.TrailingPct/100)
		raiseStop(p, &d, trail, StopIgnitionTrailing)

		// No fixed target for ignition, the ratchet is the only exit
		if price <= p.StopLoss {
			d.Exit = true
			d.ExitPrice = p.StopLoss
			d.Reason = ExitTrailingStop
		}
		return d
	}

	if price <= p.StopLoss {
		d.Exit = true
		d.ExitPrice = p.StopLoss
		d.Reason = stopReason(p)
		return d
	}
	if p.TakeProfit > 0 && price >= p.TakeProfit {
		d.Exit = true
		d.ExitPrice = p.TakeProfit
		d.Reason = ExitTakeProfit
		return d
	}

	params := p.TradeParams
	r := p.RMultiple(price)

	if params.PartialTPEnabled && !p.PartialTaken && r >= params.PartialTPTriggerR {
		d.PartialQuantity = p.Quantity * params.PartialTPSizePct / 100
	}

	if params.BreakevenEnabled && !p.BreakevenArmed && r >= params.BreakevenTriggerR {
		p.BreakevenArmed = true
		raiseStop(p, &d, p.EntryPrice, StopBreakeven)
	}

	if params.AdaptiveTrailingEnabled && trailingActive(p) {
		mult := params.TrailingATRMultiplier
		if params.TrailingTightenR > 0 && (p.TrailingTightened || r >= params.TrailingTightenR) {
			if !p.TrailingTightened {
				p.TrailingTightened = true
				d.Tightened = true
			}
			mult *= 1 - params.TrailingTightenReduction
		}

		distance := p.ATRAtEntry * mult
		if p.ATRAtEntry <= 0 {
			distance = p.InitialRiskPerUnit * mult
		}
		if distance > 0 {
			raiseStop(p, &d, p.HighestPriceSinceEntry-distance, StopAdaptiveTrailing)
		}
	}

	return d
}

// trailingActive reports whether the adaptive trail is armed. It follows
// breakeven when that is enabled, else 1R of the high-water mark.
func trailingActive(p *state.Position) bool {
	if p.TradeParams.BreakevenEnabled {
		return p.BreakevenArmed
	}
	return p.RMultiple(p.HighestPriceSinceEntry) >= 1
}

func raiseStop(p *state.Position, d *TickDecision, candidate float64, reason string) {
	if candidate <= p.StopLoss {
		return
	}
	d.StopUpdates = append(d.StopUpdates, StopUpdate{
		Reason:      reason,
		OldStopLoss: p.StopLoss,
		NewStopLoss: candidate,
	})
	p.StopLoss = candidate
}

func stopReason(p *state.Position) ExitReason {
	if p.InitialStopLoss <= 0 || p.StopLoss <= p.InitialStopLoss {
		return ExitStopLoss
	}
	if p.BreakevenArmed && p.StopLoss == p.EntryPrice {
		return ExitBreakeven
	}
	return ExitTrailingStop
}
