package strategy

import (
	"math"
	"testing"

	"binance-signal-engine/internal/binance"
)

func closes(values ...float64) []binance.Kline {
	klines := make([]binance.Kline, len(values))
	for i, v := range values {
		klines[i] = binance.Kline{OpenTime: int64(i+1) * 60000, Open: v, High: v, Low: v, Close: v, Volume: 1}
	}
	return klines
}

func rising(n int, start, step float64) []binance.Kline {
	values := make([]float64, n)
	for i := range values {
		values[i] = start + float64(i)*step
	}
	return closes(values...)
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestCalculateSMA(t *testing.T) {
	klines := closes(1, 2, 3, 4, 5)

	if got := CalculateSMA(klines, 5); got != 3 {
		t.Errorf("CalculateSMA(5) = %v, want 3", got)
	}
	if got := CalculateSMA(klines, 2); got != 4.5 {
		t.Errorf("CalculateSMA(2) = %v, want 4.5", got)
	}
	if got := CalculateSMA(klines, 6); got != 0 {
		t.Errorf("Expected 0 for insufficient data, got %v", got)
	}
}

func TestCalculateEMA(t *testing.T) {
	// constant input keeps EMA at the constant
	if got := CalculateEMA(closes(5, 5, 5, 5, 5, 5), 3); got != 5 {
		t.Errorf("CalculateEMA(constant) = %v, want 5", got)
	}

	// seed = SMA(1,2,3) = 2, k = 0.5 -> 4*0.5 + 2*0.5 = 3
	if got := CalculateEMA(closes(1, 2, 3, 4), 3); got != 3 {
		t.Errorf("CalculateEMA = %v, want 3", got)
	}

	if series := EMASeries(closes(1, 2), 3); series != nil {
		t.Errorf("Expected nil series for insufficient data, got %v", series)
	}
}

func TestCalculateRSI(t *testing.T) {
	tests := []struct {
		name   string
		klines []binance.Kline
		want   float64
	}{
		{"only gains", rising(30, 100, 1), 100},
		{"flat", closes(make([]float64, 30)...), 50},
		{"insufficient", rising(5, 100, 1), 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateRSI(tt.klines, 14); got != tt.want {
				t.Errorf("CalculateRSI() = %v, want %v", got, tt.want)
			}
		})
	}

	falling := rising(30, 200, -1)
	if got := CalculateRSI(falling, 14); got != 0 {
		t.Errorf("Expected RSI 0 for only losses, got %v", got)
	}
}

func TestCalculateATR(t *testing.T) {
	klines := make([]binance.Kline, 20)
	for i := range klines {
		klines[i] = binance.Kline{Open: 100, High: 101, Low: 99, Close: 100}
	}

	if got := CalculateATR(klines, 14); !approxEqual(got, 2, 1e-9) {
		t.Errorf("CalculateATR = %v, want 2", got)
	}
	if got := CalculateATR(klines[:10], 14); got != 0 {
		t.Errorf("Expected 0 for insufficient data, got %v", got)
	}
}

func TestCalculateADX(t *testing.T) {
	// steady uptrend: all directional movement is positive
	klines := make([]binance.Kline, 40)
	for i := range klines {
		base := 100 + float64(i)
		klines[i] = binance.Kline{Open: base, High: base + 1, Low: base - 0.5, Close: base + 0.5}
	}

	if got := CalculateADX(klines, 14); !approxEqual(got, 100, 1e-6) {
		t.Errorf("Expected ADX 100 for a pure uptrend, got %v", got)
	}
	if got := CalculateADX(klines[:20], 14); got != 0 {
		t.Errorf("Expected 0 for insufficient data, got %v", got)
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{10, 1, 9, 2, 8, 3, 7, 4, 6, 5}

	tests := []struct {
		p    float64
		want float64
	}{
		{25, 3},
		{50, 5},
		{100, 10},
		{0, 1},
	}
	for _, tt := range tests {
		if got := Percentile(values, tt.p); got != tt.want {
			t.Errorf("Percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if values[0] != 10 {
		t.Error("Percentile must not reorder its input")
	}
}

func TestBandWidthSeries(t *testing.T) {
	widths := BandWidthSeries(closes(make([]float64, 25)...), 20, 2)
	if len(widths) != 6 {
		t.Fatalf("Expected 6 widths, got %d", len(widths))
	}

	// flat prices at 100 have zero width
	flat := closes(100, 100, 100, 100, 100)
	if w := CalculateBollingerBands(flat, 5, 2).WidthPct(); w != 0 {
		t.Errorf("Expected zero width, got %v", w)
	}
}

func TestVolumeFlow(t *testing.T) {
	klines := []binance.Kline{
		{Close: 10, Open: 10, Volume: 5},
		{Close: 11, Open: 10, Volume: 3},
		{Close: 10, Open: 11, Volume: 2},
		{Close: 10, Open: 10, Volume: 4},
	}

	obv := OBVSeries(klines)
	want := []float64{0, 3, 1, 1}
	for i := range want {
		if obv[i] != want[i] {
			t.Errorf("OBV[%d] = %v, want %v", i, obv[i], want[i])
		}
	}

	if got := Slope(obv, 2); got != -2 {
		t.Errorf("Slope(obv, 2) = %v, want -2", got)
	}
	if got := Slope(obv, 10); got != 0 {
		t.Errorf("Expected zero slope for short series, got %v", got)
	}

	if got := CandleDelta(binance.Kline{Volume: 10, TakerBuyBaseAssetVolume: 7}); got != 4 {
		t.Errorf("CandleDelta with taker data = %v, want 4", got)
	}
	if got := CandleDelta(binance.Kline{Open: 2, Close: 1, Volume: 10}); got != -10 {
		t.Errorf("CandleDelta bearish = %v, want -10", got)
	}

	cvd := CVDSeries(klines[1:3])
	if cvd[1] != 1 {
		t.Errorf("Expected CVD 1, got %v", cvd[1])
	}

	if got := AverageVolume(klines, 2); got != 3 {
		t.Errorf("AverageVolume(2) = %v, want 3", got)
	}
}
