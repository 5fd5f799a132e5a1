package state

import (
	"errors"
	"math"
	"testing"
	"time"

	"binance-signal-engine/config"
	"binance-signal-engine/internal/strategy"
)

func newTestState() *BotState {
	settings := config.DefaultTradingSettings()
	settings.InitialBalance = 1000
	return New(settings)
}

func filledPosition(s *BotState, symbol string, entry, qty float64) *Position {
	return &Position{
		ID:                s.NextTradeID(),
		Symbol:            symbol,
		EntryPrice:        entry,
		AverageEntryPrice: entry,
		Quantity:          qty,
		TargetQuantity:    qty,
		TotalCostUSD:      entry * qty,
		StopLoss:          entry * 0.98,
		TakeProfit:        entry * 1.06,
		StrategyType:      strategy.StrategyPrecision,
		EntryTime:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestBotState_OnePositionPerSymbol(t *testing.T) {
	s := newTestState()

	if err := s.AddPosition(filledPosition(s, "BTCUSDT", 100, 1)); err != nil {
		t.Fatalf("Expected first add to succeed, got %v", err)
	}
	err := s.AddPosition(filledPosition(s, "BTCUSDT", 101, 1))
	if !errors.Is(err, ErrSymbolAlreadyOpen) {
		t.Errorf("Expected ErrSymbolAlreadyOpen, got %v", err)
	}
	if s.OpenPositionCount() != 1 {
		t.Errorf("Expected 1 open position, got %d", s.OpenPositionCount())
	}
	if s.Balance() != 900 {
		t.Errorf("Expected balance debited once to 900, got %v", s.Balance())
	}
}

func TestBotState_ClosePosition(t *testing.T) {
	s := newTestState()
	p := filledPosition(s, "ETHUSDT", 100, 2)
	if err := s.AddPosition(p); err != nil {
		t.Fatal(err)
	}

	closedAt := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	closed, err := s.ClosePosition(p.ID, 98, closedAt, "STOP_LOSS")
	if err != nil {
		t.Fatalf("Expected close to succeed, got %v", err)
	}

	if closed.Status != StatusClosed || closed.ExitPrice != 98 || closed.ExitReason != "STOP_LOSS" {
		t.Errorf("Unexpected closed position %+v", closed)
	}
	if closed.PnL != (98-100)*2 {
		t.Errorf("Expected pnl -4, got %v", closed.PnL)
	}
	if closed.PnLPct != closed.PnL/closed.TotalCostUSD*100 {
		t.Errorf("Expected pnl pct -2, got %v", closed.PnLPct)
	}
	if s.Balance() != 996 {
		t.Errorf("Expected balance 996, got %v", s.Balance())
	}
	if s.HasOpenPosition("ETHUSDT") {
		t.Error("Expected position removed from active set")
	}
	if h := s.TradeHistory(0); len(h) != 1 || h[0].ID != p.ID {
		t.Errorf("Expected position moved to history, got %+v", h)
	}

	if _, err := s.ClosePosition(p.ID, 98, closedAt, "MANUAL"); !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("Expected ErrPositionNotFound on second close, got %v", err)
	}
}

func TestBotState_ApplyPartialExit(t *testing.T) {
	s := newTestState()
	p := filledPosition(s, "SOLUSDT", 100, 2)
	if err := s.AddPosition(p); err != nil {
		t.Fatal(err)
	}

	updated, realized, err := s.ApplyPartialExit(p.ID, 1, 110)
	if err != nil {
		t.Fatalf("Expected partial exit to succeed, got %v", err)
	}
	if realized != 10 {
		t.Errorf("Expected realized 10, got %v", realized)
	}
	if updated.Quantity != 1 || updated.TotalCostUSD != 100 || !updated.PartialTaken {
		t.Errorf("Unexpected position after partial %+v", updated)
	}
	// 800 after entry, +100 cost released, +10 profit
	if s.Balance() != 910 {
		t.Errorf("Expected balance 910, got %v", s.Balance())
	}

	if _, _, err := s.ApplyPartialExit(p.ID, 1, 110); err == nil {
		t.Error("Expected error when partial quantity consumes the whole position")
	}

	closed, _ := s.ClosePosition(p.ID, 105, time.Now(), "TAKE_PROFIT")
	if math.Abs(closed.PnL-5) > 1e-9 || math.Abs(closed.PnLPct-5) > 1e-9 {
		t.Errorf("Expected pnl 5 (5%%) on the remainder, got %v (%v%%)", closed.PnL, closed.PnLPct)
	}
	if s.Balance() != 1015 {
		t.Errorf("Expected balance 1015, got %v", s.Balance())
	}
	if st := s.Stats(); st.TotalPnL != 15 || st.Wins != 1 {
		t.Errorf("Expected total pnl 15 with one win, got %+v", st)
	}
}

func TestBotState_CopiesAreIsolated(t *testing.T) {
	s := newTestState()
	p := filledPosition(s, "BTCUSDT", 100, 1)
	p.EntrySnapshot = &strategy.Signal{Symbol: "BTCUSDT", Checklist: []strategy.Condition{{Name: "x", Met: true}}}
	if err := s.AddPosition(p); err != nil {
		t.Fatal(err)
	}

	p.StopLoss = 1 // caller's copy
	got, _ := s.Position(p.ID)
	got.EntrySnapshot.Checklist[0].Met = false

	again, _ := s.PositionBySymbol("BTCUSDT")
	if again.StopLoss != 98 {
		t.Errorf("Expected stored stop 98, got %v", again.StopLoss)
	}
	if !again.EntrySnapshot.Checklist[0].Met {
		t.Error("Expected stored checklist untouched")
	}
}

func TestBotState_SnapshotRestore(t *testing.T) {
	s := newTestState()
	p := filledPosition(s, "BTCUSDT", 100, 1)
	if err := s.AddPosition(p); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.UpdatePrice("BTCUSDT", 101, now)
	s.Cooldown().Trip("ETHUSDT", now.Add(time.Hour))
	s.Confirmations().Hold(strategy.Signal{Symbol: "SOLUSDT", Strategy: strategy.StrategyPrecision})

	restored := newTestState()
	restored.Restore(s.Snapshot())

	if restored.Balance() != 900 {
		t.Errorf("Expected balance 900, got %v", restored.Balance())
	}
	if !restored.HasOpenPosition("BTCUSDT") {
		t.Error("Expected open position restored")
	}
	if price, ok := restored.LastPrice("BTCUSDT"); !ok || price != 101 {
		t.Errorf("Expected cached price 101, got %v %v", price, ok)
	}
	if ok, _ := restored.Cooldown().CanTrade("ETHUSDT", now); ok {
		t.Error("Expected cooldown restored")
	}
	if _, ok := restored.Confirmations().Pending("SOLUSDT"); !ok {
		t.Error("Expected pending confirmation restored")
	}
	if id := restored.NextTradeID(); id != p.ID+1 {
		t.Errorf("Expected trade id counter to continue at %d, got %d", p.ID+1, id)
	}
}

func TestBotState_SettingsAndPause(t *testing.T) {
	s := newTestState()
	s.SetPaused(true)
	if !s.Settings().Paused {
		t.Error("Expected paused")
	}

	next := config.DefaultTradingSettings()
	next.MaxOpenPositions = 2
	s.ReplaceSettings(next)
	if got := s.Settings(); got.MaxOpenPositions != 2 || got.Paused {
		t.Errorf("Expected replaced settings, got %+v", got)
	}
}

func TestPosition_RMultiple(t *testing.T) {
	p := &Position{EntryPrice: 100, InitialRiskPerUnit: 2}
	if got := p.RMultiple(104); got != 2 {
		t.Errorf("Expected 2R, got %v", got)
	}
	if got := (&Position{EntryPrice: 100}).RMultiple(104); got != 0 {
		t.Errorf("Expected 0 without initial risk, got %v", got)
	}
}
