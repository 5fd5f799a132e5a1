package circuit

import (
	"math"
	"testing"
	"time"
)

func TestLossCooldown_RecordClose(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		pnl      float64
		wantTrip bool
	}{
		{"loss trips", -2, true},
		{"breakeven does not trip", 0, false},
		{"profit does not trip", 5, false},
		{"nan ignored", math.NaN(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := NewLossCooldown()
			if got := lc.RecordClose("BTCUSDT", tt.pnl, now, 4*time.Hour); got != tt.wantTrip {
				t.Errorf("RecordClose() = %v, want %v", got, tt.wantTrip)
			}
			wantState := StateClosed
			if tt.wantTrip {
				wantState = StateOpen
			}
			if got := lc.State("BTCUSDT", now); got != wantState {
				t.Errorf("State() = %s, want %s", got, wantState)
			}
		})
	}
}

func TestLossCooldown_ExpiresAtBoundary(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	lc := NewLossCooldown()
	lc.RecordClose("ETHUSDT", -1, now, 4*time.Hour)

	if ok, reason := lc.CanTrade("ETHUSDT", now.Add(4*time.Hour-time.Second)); ok || reason == "" {
		t.Error("Expected symbol blocked just before expiry")
	}
	if ok, _ := lc.CanTrade("ETHUSDT", now.Add(4*time.Hour)); !ok {
		t.Error("Expected symbol allowed exactly at expiry")
	}
	if ok, _ := lc.CanTrade("SOLUSDT", now); !ok {
		t.Error("Expected untouched symbol allowed")
	}

	// expired entries linger until pruned
	if _, ok := lc.Expiry("ETHUSDT"); !ok {
		t.Error("Expected expiry to remain stored")
	}
	if n := lc.Prune(now.Add(5 * time.Hour)); n != 1 {
		t.Errorf("Expected 1 pruned entry, got %d", n)
	}
}

func TestLossCooldown_SnapshotRestore(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	lc := NewLossCooldown()

	var tripped string
	lc.OnTrip(func(symbol string, until time.Time) { tripped = symbol })
	lc.Trip("BTCUSDT", now.Add(time.Hour))
	if tripped != "BTCUSDT" {
		t.Errorf("Expected trip callback for BTCUSDT, got %q", tripped)
	}

	snap := lc.Snapshot()
	snap["MUTATED"] = now // snapshot is a copy

	restored := NewLossCooldown()
	restored.Restore(lc.Snapshot())
	if restored.State("BTCUSDT", now) != StateOpen {
		t.Error("Expected restored cooldown to block BTCUSDT")
	}
	if _, ok := restored.Expiry("MUTATED"); ok {
		t.Error("Expected snapshot mutation not to leak")
	}

	restored.ForceReset("BTCUSDT")
	if restored.State("BTCUSDT", now) != StateClosed {
		t.Error("Expected force reset to clear cooldown")
	}
}
