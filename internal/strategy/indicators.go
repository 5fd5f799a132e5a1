package strategy

import (
	"math"
	"sort"

	"binance-signal-engine/internal/binance"

	"github.com/markcheno/go-talib"
)

// neutralRSI is reported when there is not enough movement to measure
const neutralRSI = 50.0

func closeSeries(klines []binance.Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Close
	}
	return out
}

func hlcSeries(klines []binance.Kline) (high, low, close []float64) {
	high = make([]float64, len(klines))
	low = make([]float64, len(klines))
	close = make([]float64, len(klines))
	for i, k := range klines {
		high[i], low[i], close[i] = k.High, k.Low, k.Close
	}
	return high, low, close
}

func volumeSeries(klines []binance.Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Volume
	}
	return out
}

func lastValue(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// CalculateSMA returns the simple moving average of the last period closes
func CalculateSMA(klines []binance.Kline, period int) float64 {
	if period <= 0 || len(klines) < period {
		return 0
	}
	if period == 1 {
		return klines[len(klines)-1].Close
	}
	return lastValue(talib.Sma(closeSeries(klines[len(klines)-period:]), period))
}

// CalculateEMA returns the latest EMA, seeded from an SMA
func CalculateEMA(klines []binance.Kline, period int) float64 {
	return lastValue(EMASeries(klines, period))
}

// EMASeries returns EMA values from index period-1 onward
func EMASeries(klines []binance.Kline, period int) []float64 {
	if period <= 1 || len(klines) < period {
		return nil
	}
	return talib.Ema(closeSeries(klines), period)[period-1:]
}

// CalculateRSI returns Wilder's RSI. Short or motionless input is neutral.
func CalculateRSI(klines []binance.Kline, period int) float64 {
	if period < 2 || len(klines) < period+1 {
		return neutralRSI
	}

	closes := closeSeries(klines)
	moved := false
	for i := 1; i < len(closes); i++ {
		if closes[i] != closes[i-1] {
			moved = true
			break
		}
	}
	if !moved {
		return neutralRSI
	}

	return lastValue(talib.Rsi(closes, period))
}

// BollingerBandsResult holds one set of band values
type BollingerBandsResult struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// WidthPct returns band width as a percentage of the middle band
func (b BollingerBandsResult) WidthPct() float64 {
	if b.Middle == 0 {
		return 0
	}
	return (b.Upper - b.Lower) / b.Middle * 100
}

// CalculateBollingerBands returns SMA bands with population deviation over
// the last period closes
func CalculateBollingerBands(klines []binance.Kline, period int, stdDevMultiplier float64) *BollingerBandsResult {
	if period < 2 || len(klines) < period {
		return &BollingerBandsResult{}
	}

	upper, middle, lower := talib.BBands(closeSeries(klines[len(klines)-period:]), period,
		stdDevMultiplier, stdDevMultiplier, talib.SMA)
	return &BollingerBandsResult{
		Upper:  lastValue(upper),
		Middle: lastValue(middle),
		Lower:  lastValue(lower),
	}
}

// BandWidthSeries returns the band width percentage for every complete
// period-length sub-window, oldest first. The last element is the current width.
func BandWidthSeries(klines []binance.Kline, period int, stdDevMultiplier float64) []float64 {
	if period < 2 || len(klines) < period {
		return nil
	}

	upper, middle, lower := talib.BBands(closeSeries(klines), period,
		stdDevMultiplier, stdDevMultiplier, talib.SMA)

	widths := make([]float64, 0, len(klines)-period+1)
	for i := period - 1; i < len(klines); i++ {
		b := BollingerBandsResult{Upper: upper[i], Middle: middle[i], Lower: lower[i]}
		widths = append(widths, b.WidthPct())
	}
	return widths
}

// Percentile returns the nearest-rank p-th percentile (0-100) of values
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// CalculateATR returns Wilder's average true range
func CalculateATR(klines []binance.Kline, period int) float64 {
	if period < 2 || len(klines) < period+1 {
		return 0
	}
	high, low, close := hlcSeries(klines)
	return lastValue(talib.Atr(high, low, close, period))
}

// CalculateADX returns the average directional index. It needs at least
// 2*period+1 candles and returns 0 otherwise.
func CalculateADX(klines []binance.Kline, period int) float64 {
	if period < 2 || len(klines) < 2*period+1 {
		return 0
	}
	high, low, close := hlcSeries(klines)
	return lastValue(talib.Adx(high, low, close, period))
}

// AverageVolume returns the mean volume of the last period candles
func AverageVolume(klines []binance.Kline, period int) float64 {
	if len(klines) == 0 || period <= 0 {
		return 0
	}
	if len(klines) < period {
		period = len(klines)
	}

	sum := 0.0
	for _, k := range klines[len(klines)-period:] {
		sum += k.Volume
	}
	return sum / float64(period)
}

// OBVSeries returns on-balance volume for every candle, rebased to start at 0
func OBVSeries(klines []binance.Kline) []float64 {
	if len(klines) == 0 {
		return nil
	}

	obv := talib.Obv(closeSeries(klines), volumeSeries(klines))
	base := obv[0]
	for i := range obv {
		obv[i] -= base
	}
	return obv
}

// CandleDelta estimates buy minus sell volume for one candle. Taker buy
// volume is used when the feed provides it, candle direction otherwise.
func CandleDelta(k binance.Kline) float64 {
	if k.TakerBuyBaseAssetVolume > 0 {
		return 2*k.TakerBuyBaseAssetVolume - k.Volume
	}
	switch {
	case k.Close > k.Open:
		return k.Volume
	case k.Close < k.Open:
		return -k.Volume
	}
	return 0
}

// CVDSeries returns cumulative volume delta for every candle
func CVDSeries(klines []binance.Kline) []float64 {
	cvd := make([]float64, len(klines))
	running := 0.0
	for i, k := range klines {
		running += CandleDelta(k)
		cvd[i] = running
	}
	return cvd
}

// Slope returns the change of series over the last lookback steps
func Slope(series []float64, lookback int) float64 {
	if lookback <= 0 || len(series) <= lookback {
		return 0
	}
	return series[len(series)-1] - series[len(series)-1-lookback]
}
