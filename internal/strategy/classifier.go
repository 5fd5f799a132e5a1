package strategy

import (
	"context"
	"time"

	"binance-signal-engine/config"

	"golang.org/x/sync/errgroup"
)

// Classifier runs every evaluator against one snapshot and keeps the
// highest-tier candidate.
type Classifier struct {
	evaluators []Evaluator
	now        func() time.Time
}

// NewClassifier creates a classifier with the precision, momentum and
// ignition evaluators.
func NewClassifier() *Classifier {
	return NewClassifierWith(PrecisionEvaluator{}, MomentumEvaluator{}, IgnitionEvaluator{})
}

// NewClassifierWith creates a classifier over custom evaluators
func NewClassifierWith(evaluators ...Evaluator) *Classifier {
	return &Classifier{evaluators: evaluators, now: time.Now}
}

// Classify evaluates snap concurrently. The result always carries the
// symbol; Strategy is NONE when nothing qualifies.
func (c *Classifier) Classify(ctx context.Context, snap *Snapshot, settings config.TradingSettings) (*Signal, error) {
	candidates := make([]Candidate, len(c.evaluators))

	g, gctx := errgroup.WithContext(ctx)
	for i, ev := range c.evaluators {
		i, ev := i, ev
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			candidates[i] = ev.Evaluate(snap, settings)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := Candidate{Strategy: StrategyNone, Tier: TierNone}
	for _, cand := range candidates {
		if cand.Tier > best.Tier {
			best = cand
		}
	}

	sig := &Signal{
		Strategy:      best.Strategy,
		Tier:          best.Tier,
		Checklist:     best.Checklist,
		ConditionsMet: ConditionsMetCount(best.Checklist),
		Actionable:    best.Actionable,
		GeneratedAt:   c.now(),
	}
	if snap != nil {
		sig.Symbol = snap.Symbol
		sig.Price = snap.Price
		if snap.Setup != nil {
			sig.Regime = &Regime{ADX: snap.Setup.ADX, ATR: snap.Setup.ATR, ATRPct: snap.Setup.ATRPct}
		}
	}

	if sig.Strategy == StrategyPrecision && sig.Actionable && settings.RequireMTFConfirmation {
		sig.RequiresConfirmation = true
	}

	return sig, nil
}

// SelectProfile resolves the parameter set for an actionable signal.
// Ignition always uses its own set. Otherwise the 15m regime picks Scalper
// (ranging), Volatility Hunter (volatile) or Sniper, checked in that order.
func SelectProfile(sig *Signal, s config.TradingSettings) config.TradeParameters {
	if sig.Strategy == StrategyIgnition {
		return s.Profiles.Ignition
	}
	if !s.AdaptiveProfiles {
		return s.Profiles.Manual
	}
	if sig.Regime == nil {
		return s.Profiles.Sniper
	}

	switch {
	case sig.Regime.ADX < s.RangeADXThreshold:
		return s.Profiles.Scalper
	case sig.Regime.ATRPct > s.VolatileATRPctThreshold:
		return s.Profiles.VolatilityHunter
	default:
		return s.Profiles.Sniper
	}
}
