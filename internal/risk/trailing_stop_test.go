package risk

import (
	"math"
	"testing"

	"binance-signal-engine/config"
	"binance-signal-engine/internal/state"
	"binance-signal-engine/internal/strategy"
)

func openPosition(strat strategy.StrategyType, params config.TradeParameters) *state.Position {
	return &state.Position{
		ID:                     1,
		Symbol:                 "BTCUSDT",
		EntryPrice:             100,
		AverageEntryPrice:      100,
		Quantity:               2,
		TotalCostUSD:           200,
		StopLoss:               98,
		InitialStopLoss:        98,
		InitialRiskPerUnit:     2,
		TakeProfit:             106,
		HighestPriceSinceEntry: 100,
		ATRAtEntry:             1,
		StrategyType:           strat,
		TradeParams:            params,
		Status:                 state.StatusFilled,
	}
}

func TestEvaluateTick_StopAndTarget(t *testing.T) {
	plain := config.TradeParameters{RiskRewardRatio: 3, StopLossMode: config.StopLossPercent, StopLossPct: 2}

	tests := []struct {
		name       string
		price      float64
		wantExit   bool
		wantPrice  float64
		wantReason ExitReason
	}{
		{"stop hit exactly", 98, true, 98, ExitStopLoss},
		{"gap through stop exits at stop", 95, true, 98, ExitStopLoss},
		{"target hit", 106, true, 106, ExitTakeProfit},
		{"gap through target exits at target", 110, true, 106, ExitTakeProfit},
		{"in range", 101, false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := openPosition(strategy.StrategyPrecision, plain)
			d := EvaluateTick(p, tt.price, true)
			if d.Exit != tt.wantExit || d.ExitPrice != tt.wantPrice || d.Reason != tt.wantReason {
				t.Errorf("Expected exit=%v @%v %s, got %+v", tt.wantExit, tt.wantPrice, tt.wantReason, d)
			}
			if p.StopLoss != 98 {
				t.Errorf("Expected stop unchanged without breakeven or trailing, got %v", p.StopLoss)
			}
		})
	}
}

func TestEvaluateTick_IgnitionRatchet(t *testing.T) {
	params := config.TradeParameters{RiskRewardRatio: 2, StopLossMode: config.StopLossPercent, StopLossPct: 3, TrailingPct: 1.5}
	p := openPosition(strategy.StrategyIgnition, params)
	p.StopLoss, p.InitialStopLoss = 97, 97

	prev := p.StopLoss
	// ticks above the fixed target of 106 do not exit
	for _, price := range []float64{103, 110, 109} {
		d := EvaluateTick(p, price, true)
		if d.Exit {
			t.Fatalf("Unexpected exit at %v: %+v", price, d)
		}
		if p.StopLoss < prev {
			t.Fatalf("Stop loosened from %v to %v", prev, p.StopLoss)
		}
		prev = p.StopLoss
	}

	if p.HighestPriceSinceEntry != 110 {
		t.Errorf("Expected high-water mark 110, got %v", p.HighestPriceSinceEntry)
	}
	if math.Abs(p.StopLoss-108.35) > 1e-9 {
		t.Fatalf("Expected stop ratcheted to 108.35, got %v", p.StopLoss)
	}

	d := EvaluateTick(p, p.StopLoss, true)
	if !d.Exit || d.Reason != ExitTrailingStop || math.Abs(d.ExitPrice-108.35) > 1e-9 {
		t.Errorf("Expected trailing exit at 108.35, got %+v", d)
	}
}

func TestEvaluateTick_IgnitionTrailingDisabled(t *testing.T) {
	params := config.TradeParameters{RiskRewardRatio: 2, StopLossMode: config.StopLossPercent, StopLossPct: 3, TrailingPct: 1.5}
	p := openPosition(strategy.StrategyIgnition, params)

	d := EvaluateTick(p, 106, false)
	if !d.Exit || d.Reason != ExitTakeProfit {
		t.Errorf("Expected fixed target exit with trailing disabled, got %+v", d)
	}
}

func TestEvaluateTick_BreakevenAndTrailing(t *testing.T) {
	sniper := config.DefaultProfiles().Sniper
	sniper.PartialTPEnabled = false
	p := openPosition(strategy.StrategyPrecision, sniper)
	p.TakeProfit = 200

	// 0.5R: nothing moves
	if d := EvaluateTick(p, 101, true); len(d.StopUpdates) != 0 {
		t.Fatalf("Expected no stop update below 1R, got %+v", d.StopUpdates)
	}

	// 1R: breakeven, trail at 102 - 1*2 = 100 does not beat entry
	d := EvaluateTick(p, 102, true)
	if !p.BreakevenArmed || p.StopLoss != 100 {
		t.Fatalf("Expected breakeven at 100, got armed=%v stop=%v", p.BreakevenArmed, p.StopLoss)
	}
	if len(d.StopUpdates) != 1 || d.StopUpdates[0].Reason != StopBreakeven {
		t.Errorf("Expected one breakeven update, got %+v", d.StopUpdates)
	}

	// 1.5R: trail 103 - 2 = 101
	EvaluateTick(p, 103, true)
	if p.StopLoss != 101 {
		t.Errorf("Expected trailing stop 101, got %v", p.StopLoss)
	}

	// 2R: tighten to 1x ATR, trail 104 - 1 = 103
	d = EvaluateTick(p, 104, true)
	if !d.Tightened || !p.TrailingTightened || p.StopLoss != 103 {
		t.Errorf("Expected tightened trail at 103, got tightened=%v stop=%v", d.Tightened, p.StopLoss)
	}

	// pullback never loosens
	EvaluateTick(p, 103.5, true)
	if p.StopLoss != 103 {
		t.Errorf("Expected stop held at 103, got %v", p.StopLoss)
	}

	d = EvaluateTick(p, 102.9, true)
	if !d.Exit || d.Reason != ExitTrailingStop || d.ExitPrice != 103 {
		t.Errorf("Expected trailing exit at 103, got %+v", d)
	}
}

func TestEvaluateTick_BreakevenExit(t *testing.T) {
	manual := config.DefaultProfiles().Manual
	p := openPosition(strategy.StrategyMomentum, manual)

	EvaluateTick(p, 102, true)
	d := EvaluateTick(p, 99.5, true)
	if !d.Exit || d.Reason != ExitBreakeven || d.ExitPrice != 100 {
		t.Errorf("Expected breakeven exit at entry, got %+v", d)
	}
}

func TestEvaluateTick_PartialTakeProfit(t *testing.T) {
	sniper := config.DefaultProfiles().Sniper
	p := openPosition(strategy.StrategyPrecision, sniper)

	if d := EvaluateTick(p, 102.9, true); d.PartialQuantity != 0 {
		t.Errorf("Expected no partial below 1.5R, got %v", d.PartialQuantity)
	}
	d := EvaluateTick(p, 103, true)
	if d.PartialQuantity != 1 {
		t.Errorf("Expected half of 2 units, got %v", d.PartialQuantity)
	}

	p.PartialTaken = true
	if d := EvaluateTick(p, 104, true); d.PartialQuantity != 0 {
		t.Errorf("Expected partial only once, got %v", d.PartialQuantity)
	}
}
