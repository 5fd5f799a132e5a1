package confirmation

import (
	"testing"
	"time"

	"binance-signal-engine/internal/binance"
	"binance-signal-engine/internal/strategy"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func precisionSignal(symbol string, price float64) strategy.Signal {
	return strategy.Signal{
		Symbol:               symbol,
		Strategy:             strategy.StrategyPrecision,
		Tier:                 strategy.TierPrecisionConfirmed,
		Price:                price,
		Actionable:           true,
		RequiresConfirmation: true,
	}
}

func TestGate_Resolve(t *testing.T) {
	tests := []struct {
		name        string
		candle      binance.Kline
		wantOutcome Outcome
		wantSignal  bool
	}{
		{"bullish close promotes", binance.Kline{Open: 100, Close: 101}, OutcomeAccepted, true},
		{"bearish close discards", binance.Kline{Open: 101, Close: 100}, OutcomeRejected, false},
		{"doji discards", binance.Kline{Open: 100, Close: 100}, OutcomeRejected, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate()
			g.Hold(precisionSignal("BTCUSDT", 100))

			sig, outcome := g.Resolve("BTCUSDT", tt.candle)
			if outcome != tt.wantOutcome {
				t.Errorf("Expected outcome %q, got %q", tt.wantOutcome, outcome)
			}
			if (sig != nil) != tt.wantSignal {
				t.Fatalf("Expected signal=%v, got %+v", tt.wantSignal, sig)
			}
			if sig != nil {
				if sig.Tier != strategy.TierPrecisionMTF || !sig.Actionable || sig.RequiresConfirmation {
					t.Errorf("Expected promoted actionable signal, got %+v", sig)
				}
			}
			if _, ok := g.Pending("BTCUSDT"); ok {
				t.Error("Expected pending entry removed after resolution")
			}
		})
	}
}

func TestGate_ResolveIsIdempotent(t *testing.T) {
	g := NewGate()
	g.Hold(precisionSignal("ETHUSDT", 2000))

	if _, outcome := g.Resolve("ETHUSDT", binance.Kline{Open: 1, Close: 2}); outcome != OutcomeAccepted {
		t.Fatalf("Expected first resolution accepted, got %q", outcome)
	}
	sig, outcome := g.Resolve("ETHUSDT", binance.Kline{Open: 1, Close: 2})
	if sig != nil || outcome != OutcomeNone {
		t.Errorf("Expected no-op on second resolution, got %+v %q", sig, outcome)
	}
}

func TestGate_HoldReplaces(t *testing.T) {
	g := NewGate()
	if g.Hold(precisionSignal("SOLUSDT", 20)) {
		t.Error("Expected first hold not to replace")
	}
	if !g.Hold(precisionSignal("SOLUSDT", 21)) {
		t.Error("Expected second hold to replace")
	}
	if g.Len() != 1 {
		t.Errorf("Expected one pending entry, got %d", g.Len())
	}
	entry, _ := g.Pending("SOLUSDT")
	if entry.Signal.Price != 21 {
		t.Errorf("Expected latest candidate kept, got price %v", entry.Signal.Price)
	}
}

func TestGate_Evict(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	g := NewGateWithClock(clock.Now)

	g.Hold(precisionSignal("BTCUSDT", 100))
	clock.Advance(10 * time.Minute)
	g.Hold(precisionSignal("ETHUSDT", 2000))
	clock.Advance(5 * time.Minute)

	evicted := g.Evict(15 * time.Minute)
	if len(evicted) != 1 || evicted[0].Symbol != "BTCUSDT" {
		t.Fatalf("Expected BTCUSDT evicted, got %+v", evicted)
	}
	if _, ok := g.Pending("ETHUSDT"); !ok {
		t.Error("Expected younger entry kept")
	}
}

func TestGate_Restore(t *testing.T) {
	src := NewGate()
	src.Hold(precisionSignal("BTCUSDT", 100))
	src.Hold(precisionSignal("ETHUSDT", 2000))

	dst := NewGate()
	dst.Hold(precisionSignal("XRPUSDT", 1))
	dst.Restore(src.Entries())

	if dst.Len() != 2 {
		t.Fatalf("Expected 2 restored entries, got %d", dst.Len())
	}
	if _, ok := dst.Pending("XRPUSDT"); ok {
		t.Error("Expected restore to replace existing entries")
	}
}
