package strategy

import "binance-signal-engine/config"

// PrecisionEvaluator looks for a 15m volatility squeeze inside a 4h uptrend
// and a 1m breakout backed by volume flow.
type PrecisionEvaluator struct{}

func (PrecisionEvaluator) Name() StrategyType { return StrategyPrecision }

func (PrecisionEvaluator) Evaluate(snap *Snapshot, s config.TradingSettings) Candidate {
	if snap == nil || snap.Trend == nil || snap.Setup == nil {
		return Candidate{Strategy: StrategyPrecision, Tier: TierNone}
	}

	watch := []Condition{
		{Name: "trend_4h_above_ema50", Met: snap.Trend.AboveEMA50},
		{Name: "squeeze_15m", Met: snap.Setup.Squeeze},
	}
	if !checklistSatisfied(watch) {
		return Candidate{Strategy: StrategyPrecision, Tier: TierNone, Checklist: watch}
	}

	// Watch state holds until a 1m window is available
	if snap.Entry == nil {
		return Candidate{Strategy: StrategyPrecision, Tier: TierPrecisionWatch, Checklist: watch}
	}

	e := snap.Entry
	volumeOK := !s.UseVolumeFilter || e.Volume > s.VolumeMultiplier*e.AvgVolume
	obvOK := !s.UseOBVFilter || e.OBVSlope > 0
	cvdOK := !s.UseCVDFilter || (snap.Confirm != nil && snap.Confirm.CVDSlope > 0)

	checklist := append(watch,
		Condition{Name: "breakout_1m_above_ema", Met: e.Close > e.EMAFast},
		Condition{Name: "volume_1m_spike", Met: volumeOK},
		Condition{Name: "obv_1m_rising", Met: obvOK},
		Condition{Name: "cvd_5m_rising", Met: cvdOK},
	)
	checklist = append(checklist, safetyFilters(snap, s)...)

	if !checklistSatisfied(checklist) {
		return Candidate{Strategy: StrategyPrecision, Tier: TierPrecisionWatch, Checklist: checklist}
	}

	return Candidate{
		Strategy:   StrategyPrecision,
		Tier:       TierPrecisionConfirmed,
		Checklist:  checklist,
		Actionable: true,
	}
}
