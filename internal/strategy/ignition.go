package strategy

import "binance-signal-engine/config"

// IgnitionEvaluator reacts to a 1m price and volume anomaly. Only the 4h
// trend filter applies; the shared safety filters are skipped.
type IgnitionEvaluator struct{}

func (IgnitionEvaluator) Name() StrategyType { return StrategyIgnition }

func (IgnitionEvaluator) Evaluate(snap *Snapshot, s config.TradingSettings) Candidate {
	if snap == nil || snap.Trend == nil || snap.Entry == nil {
		return Candidate{Strategy: StrategyIgnition, Tier: TierNone}
	}

	e := snap.Entry
	checklist := []Condition{
		{Name: "trend_4h_above_ema50", Met: snap.Trend.AboveEMA50},
		{Name: "price_spike_1m", Met: e.ChangePct >= s.IgnitionPriceSpikePct},
		{Name: "volume_anomaly_1m", Met: e.AvgVolume > 0 && e.Volume >= s.IgnitionVolumeMultiplier*e.AvgVolume},
	}

	if !checklistSatisfied(checklist) {
		return Candidate{Strategy: StrategyIgnition, Tier: TierNone, Checklist: checklist}
	}

	return Candidate{
		Strategy:   StrategyIgnition,
		Tier:       TierIgnition,
		Checklist:  checklist,
		Actionable: true,
	}
}
