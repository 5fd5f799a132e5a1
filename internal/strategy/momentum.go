package strategy

import "binance-signal-engine/config"

// MomentumEvaluator fires on a strong bullish 15m impulse candle confirmed by
// a bullish, above-average-volume 5m close.
type MomentumEvaluator struct{}

func (MomentumEvaluator) Name() StrategyType { return StrategyMomentum }

func (MomentumEvaluator) Evaluate(snap *Snapshot, s config.TradingSettings) Candidate {
	if snap == nil || snap.Trend == nil || snap.Setup == nil || snap.Confirm == nil {
		return Candidate{Strategy: StrategyMomentum, Tier: TierNone}
	}

	setup := snap.Setup
	checklist := []Condition{
		{Name: "trend_4h_above_ema50", Met: snap.Trend.AboveEMA50},
		{Name: "impulse_15m_bullish", Met: setup.Last.IsBullish()},
		{Name: "impulse_15m_body", Met: setup.BodyRatio >= s.ImpulseBodyRatio},
		{Name: "impulse_15m_volume", Met: setup.AvgVolume > 0 && setup.Last.Volume >= s.ImpulseVolumeMultiplier*setup.AvgVolume},
		{Name: "confirm_5m_bullish_volume", Met: snap.Confirm.MomentumConfirmed},
	}
	checklist = append(checklist, safetyFilters(snap, s)...)

	if !checklistSatisfied(checklist) {
		return Candidate{Strategy: StrategyMomentum, Tier: TierNone, Checklist: checklist}
	}

	return Candidate{
		Strategy:   StrategyMomentum,
		Tier:       TierMomentum,
		Checklist:  checklist,
		Actionable: true,
	}
}
