package strategy

import (
	"time"

	"binance-signal-engine/config"

	"github.com/samber/lo"
)

// StrategyType identifies which evaluator produced a candidate
type StrategyType string

const (
	StrategyNone      StrategyType = "NONE"
	StrategyPrecision StrategyType = "PRECISION"
	StrategyMomentum  StrategyType = "MOMENTUM"
	StrategyIgnition  StrategyType = "IGNITION"
)

// Tier is the numeric score used for priority resolution
type Tier int

const (
	TierNone               Tier = 0
	TierPrecisionWatch     Tier = 70
	TierPrecisionConfirmed Tier = 80
	TierPrecisionMTF       Tier = 85 // precision promoted by a bullish 5m close
	TierMomentum           Tier = 90
	TierIgnition           Tier = 100
)

// IsStrongBuy reports whether the tier qualifies for dynamic sizing
func (t Tier) IsStrongBuy() bool {
	return t >= TierMomentum
}

// Condition is one named entry of an evaluator checklist
type Condition struct {
	Name string `json:"name"`
	Met  bool   `json:"met"`
}

// Candidate is the outcome of one evaluator for one cycle
type Candidate struct {
	Strategy   StrategyType `json:"strategy"`
	Tier       Tier         `json:"tier"`
	Checklist  []Condition  `json:"checklist"`
	Actionable bool         `json:"actionable"`
}

// Evaluator scores a snapshot. Implementations are pure and safe for
// concurrent use.
type Evaluator interface {
	Name() StrategyType
	Evaluate(snap *Snapshot, settings config.TradingSettings) Candidate
}

// Regime holds the 15m readings used for profile selection
type Regime struct {
	ADX    float64 `json:"adx"`
	ATR    float64 `json:"atr"`
	ATRPct float64 `json:"atr_pct"`
}

// Signal is the classifier output for one symbol and cycle
type Signal struct {
	Symbol               string       `json:"symbol"`
	Strategy             StrategyType `json:"strategy"`
	Tier                 Tier         `json:"tier"`
	Price                float64      `json:"price"`
	Checklist            []Condition  `json:"checklist"`
	ConditionsMet        int          `json:"conditions_met"`
	Actionable           bool         `json:"actionable"`
	RequiresConfirmation bool         `json:"requires_confirmation"`
	Regime               *Regime      `json:"regime,omitempty"`
	GeneratedAt          time.Time    `json:"generated_at"`
}

// ConditionsMetCount counts satisfied checklist entries
func ConditionsMetCount(checklist []Condition) int {
	return lo.CountBy(checklist, func(c Condition) bool { return c.Met })
}

// checklistSatisfied reports whether every entry is met
func checklistSatisfied(checklist []Condition) bool {
	return lo.EveryBy(checklist, func(c Condition) bool { return c.Met })
}

// safetyFilters returns the shared RSI filters. A disabled filter is
// always met; an enabled filter without data is not.
func safetyFilters(snap *Snapshot, s config.TradingSettings) []Condition {
	rsi1h := true
	if s.UseRSI1hFilter {
		rsi1h = snap.Hourly != nil && snap.Hourly.RSI < s.RSI1hOverbought
	}
	rsi15m := true
	if s.UseRSI15mFilter {
		rsi15m = snap.Setup != nil && snap.Setup.RSI < s.RSI15mOverbought
	}
	return []Condition{
		{Name: "rsi_1h_below_overbought", Met: rsi1h},
		{Name: "rsi_15m_below_overbought", Met: rsi15m},
	}
}
