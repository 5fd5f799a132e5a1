package strategy

import (
	"math"

	"binance-signal-engine/internal/binance"
)

// Indicator periods used by the aggregator
const (
	MinCandles        = 21
	EMAFastPeriod     = 9
	EMATrendPeriod    = 50
	VolumePeriod      = 20
	BBPeriod          = 20
	BBStdDev          = 2.0
	RSIPeriod         = 14
	ATRPeriod         = 14
	ADXPeriod         = 14
	SlopeLookback     = 5
	SqueezePercentile = 25.0
)

// TrendAggregate is derived from the 4h window
type TrendAggregate struct {
	Close      float64 `json:"close"`
	EMA50      float64 `json:"ema50"`
	AboveEMA50 bool    `json:"above_ema50"`
}

// HourlyAggregate is derived from the 1h window
type HourlyAggregate struct {
	RSI float64 `json:"rsi"`
}

// SetupAggregate is derived from the 15m window
type SetupAggregate struct {
	BBUpper           float64 `json:"bb_upper"`
	BBMiddle          float64 `json:"bb_middle"`
	BBLower           float64 `json:"bb_lower"`
	WidthPct          float64 `json:"width_pct"`
	WidthPercentile25 float64 `json:"width_p25"`
	Squeeze           bool    `json:"squeeze"`
	RSI               float64 `json:"rsi"`
	ADX               float64 `json:"adx"`
	ATR               float64 `json:"atr"`
	ATRPct            float64 `json:"atr_pct"`

	// Last closed 15m candle, used for impulse detection
	Last      binance.Kline `json:"-"`
	BodyRatio float64       `json:"body_ratio"`
	AvgVolume float64       `json:"avg_volume"`
}

// ConfirmAggregate is derived from the 5m window
type ConfirmAggregate struct {
	CVDSlope          float64       `json:"cvd_slope"`
	MomentumConfirmed bool          `json:"momentum_confirmed"`
	Last              binance.Kline `json:"-"`
	AvgVolume         float64       `json:"avg_volume"`
}

// EntryAggregate is derived from the 1m window
type EntryAggregate struct {
	Close     float64 `json:"close"`
	PrevClose float64 `json:"prev_close"`
	ChangePct float64 `json:"change_pct"`
	EMAFast   float64 `json:"ema_fast"`
	Volume    float64 `json:"volume"`
	AvgVolume float64 `json:"avg_volume"`
	OBVSlope  float64 `json:"obv_slope"`
}

// Snapshot is the full multi-timeframe view of one symbol. A nil aggregate
// means "no opinion" for that timeframe.
type Snapshot struct {
	Symbol  string            `json:"symbol"`
	Price   float64           `json:"price"`
	Trend   *TrendAggregate   `json:"trend,omitempty"`
	Hourly  *HourlyAggregate  `json:"hourly,omitempty"`
	Setup   *SetupAggregate   `json:"setup,omitempty"`
	Confirm *ConfirmAggregate `json:"confirm,omitempty"`
	Entry   *EntryAggregate   `json:"entry,omitempty"`
}

// BuildSnapshot aggregates each window. price <= 0 falls back to the last 1m close.
func BuildSnapshot(symbol string, price float64, windows map[binance.KlineTimeframe][]binance.Kline) *Snapshot {
	snap := &Snapshot{
		Symbol:  symbol,
		Price:   price,
		Trend:   AggregateTrend(windows[binance.Timeframe4h]),
		Hourly:  AggregateHourly(windows[binance.Timeframe1h]),
		Setup:   AggregateSetup(windows[binance.Timeframe15m]),
		Confirm: AggregateConfirm(windows[binance.Timeframe5m]),
		Entry:   AggregateEntry(windows[binance.Timeframe1m]),
	}
	if snap.Price <= 0 && snap.Entry != nil {
		snap.Price = snap.Entry.Close
	}
	return snap
}

// AggregateTrend computes the 4h trend filter
func AggregateTrend(klines []binance.Kline) *TrendAggregate {
	if len(klines) < MinCandles || len(klines) < EMATrendPeriod {
		return nil
	}

	last := klines[len(klines)-1].Close
	ema := CalculateEMA(klines, EMATrendPeriod)
	return &TrendAggregate{
		Close:      last,
		EMA50:      ema,
		AboveEMA50: last > ema,
	}
}

// AggregateHourly computes the 1h safety RSI
func AggregateHourly(klines []binance.Kline) *HourlyAggregate {
	if len(klines) < MinCandles {
		return nil
	}
	return &HourlyAggregate{RSI: CalculateRSI(klines, RSIPeriod)}
}

// AggregateSetup computes the 15m squeeze, regime and impulse inputs
func AggregateSetup(klines []binance.Kline) *SetupAggregate {
	if len(klines) < MinCandles || len(klines) < 2*ADXPeriod+1 {
		return nil
	}

	bb := CalculateBollingerBands(klines, BBPeriod, BBStdDev)
	widths := BandWidthSeries(klines, BBPeriod, BBStdDev)
	current := widths[len(widths)-1]
	p25 := Percentile(widths, SqueezePercentile)

	last := klines[len(klines)-1]
	atr := CalculateATR(klines, ATRPeriod)
	atrPct := 0.0
	if last.Close > 0 {
		atrPct = atr / last.Close * 100
	}

	bodyRatio := 0.0
	if rng := last.High - last.Low; rng > 0 {
		bodyRatio = math.Abs(last.Close-last.Open) / rng
	}

	return &SetupAggregate{
		BBUpper:           bb.Upper,
		BBMiddle:          bb.Middle,
		BBLower:           bb.Lower,
		WidthPct:          current,
		WidthPercentile25: p25,
		Squeeze:           current <= p25,
		RSI:               CalculateRSI(klines, RSIPeriod),
		ADX:               CalculateADX(klines, ADXPeriod),
		ATR:               atr,
		ATRPct:            atrPct,
		Last:              last,
		BodyRatio:         bodyRatio,
		AvgVolume:         AverageVolume(klines[:len(klines)-1], VolumePeriod),
	}
}

// AggregateConfirm computes the 5m CVD slope and momentum confirmation
func AggregateConfirm(klines []binance.Kline) *ConfirmAggregate {
	if len(klines) < MinCandles {
		return nil
	}

	last := klines[len(klines)-1]
	avgVol := AverageVolume(klines[:len(klines)-1], VolumePeriod)

	return &ConfirmAggregate{
		CVDSlope:          Slope(CVDSeries(klines), SlopeLookback),
		MomentumConfirmed: last.IsBullish() && last.Volume > avgVol,
		Last:              last,
		AvgVolume:         avgVol,
	}
}

// AggregateEntry computes the 1m trigger inputs
func AggregateEntry(klines []binance.Kline) *EntryAggregate {
	if len(klines) < MinCandles {
		return nil
	}

	last := klines[len(klines)-1]
	prev := klines[len(klines)-2]
	change := 0.0
	if prev.Close > 0 {
		change = (last.Close - prev.Close) / prev.Close * 100
	}

	return &EntryAggregate{
		Close:     last.Close,
		PrevClose: prev.Close,
		ChangePct: change,
		EMAFast:   CalculateEMA(klines, EMAFastPeriod),
		Volume:    last.Volume,
		AvgVolume: AverageVolume(klines[:len(klines)-1], VolumePeriod),
		OBVSlope:  Slope(OBVSeries(klines), SlopeLookback),
	}
}
