package strategy

import (
	"testing"

	"binance-signal-engine/internal/binance"
)

func TestCandleWindow_FIFO(t *testing.T) {
	w := NewCandleWindow(3)
	for i := 1; i <= 5; i++ {
		if !w.Push(binance.Kline{OpenTime: int64(i), Close: float64(i)}) {
			t.Fatalf("Expected push %d to be accepted", i)
		}
	}

	if w.Len() != 3 {
		t.Fatalf("Expected len 3, got %d", w.Len())
	}
	klines := w.Klines()
	if klines[0].Close != 3 || klines[2].Close != 5 {
		t.Errorf("Expected oldest-first [3 4 5], got %v %v %v", klines[0].Close, klines[1].Close, klines[2].Close)
	}

	if w.Push(binance.Kline{OpenTime: 5, Close: 99}) {
		t.Error("Expected duplicate open time to be rejected")
	}
	if w.Push(binance.Kline{OpenTime: 2, Close: 99}) {
		t.Error("Expected older open time to be rejected")
	}
	if last, _ := w.Last(); last.Close != 5 {
		t.Errorf("Expected last close 5, got %v", last.Close)
	}
}

func TestWindowSet_SeedAndSnapshot(t *testing.T) {
	ws := NewWindowSet(DefaultWindowCapacity)

	if n := ws.Seed("BTCUSDT", binance.Timeframe4h, rising(60, 100, 1)); n != 60 {
		t.Fatalf("Expected 60 seeded candles, got %d", n)
	}
	ws.Seed("BTCUSDT", binance.Timeframe1m, rising(10, 100, 1))

	snap := ws.Snapshot("BTCUSDT", 0)
	if snap.Trend == nil || !snap.Trend.AboveEMA50 {
		t.Errorf("Expected 4h uptrend above EMA50, got %+v", snap.Trend)
	}
	if snap.Entry != nil {
		t.Error("Expected nil 1m aggregate with 10 candles")
	}
	if snap.Setup != nil || snap.Hourly != nil || snap.Confirm != nil {
		t.Error("Expected nil aggregates for empty windows")
	}
	if snap.Price != 0 {
		t.Errorf("Expected zero price without a 1m aggregate, got %v", snap.Price)
	}
}

func TestAggregate_InsufficientData(t *testing.T) {
	short := rising(MinCandles-1, 100, 1)

	if AggregateHourly(short) != nil {
		t.Error("Expected nil hourly aggregate")
	}
	if AggregateConfirm(short) != nil {
		t.Error("Expected nil confirm aggregate")
	}
	if AggregateEntry(short) != nil {
		t.Error("Expected nil entry aggregate")
	}
	if AggregateSetup(rising(2*ADXPeriod, 100, 1)) != nil {
		t.Error("Expected nil setup aggregate below the ADX requirement")
	}
	if AggregateTrend(rising(EMATrendPeriod-1, 100, 1)) != nil {
		t.Error("Expected nil trend aggregate below the EMA requirement")
	}
}

func TestAggregateSetup_FlatMarketIsSqueeze(t *testing.T) {
	setup := AggregateSetup(closes(make100(40)...))
	if setup == nil {
		t.Fatal("Expected setup aggregate")
	}
	if !setup.Squeeze {
		t.Errorf("Expected squeeze when width %v <= p25 %v", setup.WidthPct, setup.WidthPercentile25)
	}
	if setup.ATRPct != 0 {
		t.Errorf("Expected zero ATR%% on a flat market, got %v", setup.ATRPct)
	}
}

func TestAggregateSetup_ExpandingBandsNotSqueeze(t *testing.T) {
	// quiet market followed by widening swings
	values := make100(30)
	for i := 0; i < 10; i++ {
		swing := float64(i+1) * 2
		if i%2 == 0 {
			values = append(values, 100+swing)
		} else {
			values = append(values, 100-swing)
		}
	}
	klines := closes(values...)

	setup := AggregateSetup(klines)
	if setup == nil {
		t.Fatal("Expected setup aggregate")
	}
	if setup.Squeeze {
		t.Errorf("Expected no squeeze, width %v p25 %v", setup.WidthPct, setup.WidthPercentile25)
	}
}

func TestAggregateEntry(t *testing.T) {
	klines := rising(30, 100, 0)
	for i := range klines {
		klines[i].Volume = 10
	}
	last := &klines[len(klines)-1]
	last.Close, last.High, last.Volume = 103, 103, 30

	entry := AggregateEntry(klines)
	if entry == nil {
		t.Fatal("Expected entry aggregate")
	}
	if !approxEqual(entry.ChangePct, 3, 1e-9) {
		t.Errorf("Expected 3%% change, got %v", entry.ChangePct)
	}
	if entry.AvgVolume != 10 {
		t.Errorf("Expected average volume 10 excluding the last candle, got %v", entry.AvgVolume)
	}
	if entry.Close <= entry.EMAFast {
		t.Errorf("Expected close %v above EMA %v", entry.Close, entry.EMAFast)
	}
	if entry.OBVSlope != 30 {
		t.Errorf("Expected OBV slope 30, got %v", entry.OBVSlope)
	}
}

func TestAggregateConfirm(t *testing.T) {
	klines := make([]binance.Kline, 25)
	for i := range klines {
		klines[i] = binance.Kline{OpenTime: int64(i), Open: 100, Close: 100, Volume: 10}
	}
	klines[24] = binance.Kline{OpenTime: 24, Open: 100, Close: 101, Volume: 15, TakerBuyBaseAssetVolume: 10}

	confirm := AggregateConfirm(klines)
	if confirm == nil {
		t.Fatal("Expected confirm aggregate")
	}
	if !confirm.MomentumConfirmed {
		t.Error("Expected bullish above-average 5m close to confirm")
	}
	if confirm.CVDSlope != 5 {
		t.Errorf("Expected CVD slope 5, got %v", confirm.CVDSlope)
	}
}

func make100(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = 100
	}
	return values
}
