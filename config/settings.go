package config

import (
	"errors"
	"fmt"
)

// TradingMode selects the order executor
type TradingMode string

const (
	ModePaper TradingMode = "paper"
	ModeLive  TradingMode = "live"
)

// ProfileName tags a fully specified TradeParameters set
type ProfileName string

const (
	ProfileSniper           ProfileName = "SNIPER"
	ProfileScalper          ProfileName = "SCALPER"
	ProfileVolatilityHunter ProfileName = "VOLATILITY_HUNTER"
	ProfileIgnition         ProfileName = "IGNITION"
	ProfileManual           ProfileName = "MANUAL"
)

// StopLossMode selects how the initial stop is placed
type StopLossMode string

const (
	StopLossATR     StopLossMode = "ATR"
	StopLossPercent StopLossMode = "PERCENT"
)

// TradeParameters is the risk/exit model attached to a position at entry.
// It is copied by value and never mutated after the position opens.
type TradeParameters struct {
	Profile         ProfileName  `json:"profile" yaml:"profile"`
	RiskRewardRatio float64      `json:"risk_reward_ratio" yaml:"risk_reward_ratio"`
	StopLossMode    StopLossMode `json:"stop_loss_mode" yaml:"stop_loss_mode"`
	ATRMultiplier   float64      `json:"atr_multiplier" yaml:"atr_multiplier"`
	StopLossPct     float64      `json:"stop_loss_pct" yaml:"stop_loss_pct"`

	PartialTPEnabled  bool    `json:"partial_tp_enabled" yaml:"partial_tp_enabled"`
	PartialTPTriggerR float64 `json:"partial_tp_trigger_r" yaml:"partial_tp_trigger_r"`
	PartialTPSizePct  float64 `json:"partial_tp_size_pct" yaml:"partial_tp_size_pct"`

	BreakevenEnabled  bool    `json:"breakeven_enabled" yaml:"breakeven_enabled"`
	BreakevenTriggerR float64 `json:"breakeven_trigger_r" yaml:"breakeven_trigger_r"`

	AdaptiveTrailingEnabled  bool    `json:"adaptive_trailing_enabled" yaml:"adaptive_trailing_enabled"`
	TrailingATRMultiplier    float64 `json:"trailing_atr_multiplier" yaml:"trailing_atr_multiplier"`
	TrailingTightenR         float64 `json:"trailing_tighten_r" yaml:"trailing_tighten_r"`
	TrailingTightenReduction float64 `json:"trailing_tighten_reduction" yaml:"trailing_tighten_reduction"` // fraction, 0.5 = halve

	// Ratchet distance for the Ignition exit model, in percent
	TrailingPct float64 `json:"trailing_pct" yaml:"trailing_pct"`
}

// ProfileSet holds one parameter set per profile
type ProfileSet struct {
	Sniper           TradeParameters `json:"sniper" yaml:"sniper"`
	Scalper          TradeParameters `json:"scalper" yaml:"scalper"`
	VolatilityHunter TradeParameters `json:"volatility_hunter" yaml:"volatility_hunter"`
	Ignition         TradeParameters `json:"ignition" yaml:"ignition"`
	Manual           TradeParameters `json:"manual" yaml:"manual"`
}

// Get returns the parameter set for name
func (p ProfileSet) Get(name ProfileName) (TradeParameters, bool) {
	switch name {
	case ProfileSniper:
		return p.Sniper, true
	case ProfileScalper:
		return p.Scalper, true
	case ProfileVolatilityHunter:
		return p.VolatilityHunter, true
	case ProfileIgnition:
		return p.Ignition, true
	case ProfileManual:
		return p.Manual, true
	}
	return TradeParameters{}, false
}

// TradingSettings is the strategy and risk configuration read by the engine.
// It is replaced wholesale, never patched field by field while in use.
type TradingSettings struct {
	Paused         bool        `json:"paused" yaml:"paused"`
	TradingMode    TradingMode `json:"trading_mode" yaml:"trading_mode"`
	Symbols        []string    `json:"symbols" yaml:"symbols"`
	InitialBalance float64     `json:"initial_balance" yaml:"initial_balance"`

	// Portfolio gates and sizing
	MaxOpenPositions         int     `json:"max_open_positions" yaml:"max_open_positions"`
	PositionSizePct          float64 `json:"position_size_pct" yaml:"position_size_pct"`
	DynamicSizing            bool    `json:"dynamic_sizing" yaml:"dynamic_sizing"`
	StrongBuyPositionSizePct float64 `json:"strong_buy_position_size_pct" yaml:"strong_buy_position_size_pct"`
	LossCooldownHours        float64 `json:"loss_cooldown_hours" yaml:"loss_cooldown_hours"`

	// Multi-timeframe confirmation
	RequireMTFConfirmation bool `json:"require_mtf_confirmation" yaml:"require_mtf_confirmation"`
	ConfirmationMaxCandles int  `json:"confirmation_max_candles" yaml:"confirmation_max_candles"`

	// Precision entry filters
	UseVolumeFilter  bool    `json:"use_volume_filter" yaml:"use_volume_filter"`
	VolumeMultiplier float64 `json:"volume_multiplier" yaml:"volume_multiplier"`
	UseOBVFilter     bool    `json:"use_obv_filter" yaml:"use_obv_filter"`
	UseCVDFilter     bool    `json:"use_cvd_filter" yaml:"use_cvd_filter"`

	// Shared safety filters
	UseRSI1hFilter   bool    `json:"use_rsi_1h_filter" yaml:"use_rsi_1h_filter"`
	RSI1hOverbought  float64 `json:"rsi_1h_overbought" yaml:"rsi_1h_overbought"`
	UseRSI15mFilter  bool    `json:"use_rsi_15m_filter" yaml:"use_rsi_15m_filter"`
	RSI15mOverbought float64 `json:"rsi_15m_overbought" yaml:"rsi_15m_overbought"`

	// Momentum impulse
	ImpulseBodyRatio        float64 `json:"impulse_body_ratio" yaml:"impulse_body_ratio"`
	ImpulseVolumeMultiplier float64 `json:"impulse_volume_multiplier" yaml:"impulse_volume_multiplier"`

	// Ignition anomaly
	IgnitionPriceSpikePct    float64 `json:"ignition_price_spike_pct" yaml:"ignition_price_spike_pct"`
	IgnitionVolumeMultiplier float64 `json:"ignition_volume_multiplier" yaml:"ignition_volume_multiplier"`
	IgnitionTrailingEnabled  bool    `json:"ignition_trailing_enabled" yaml:"ignition_trailing_enabled"`

	// Regime classification
	AdaptiveProfiles        bool    `json:"adaptive_profiles" yaml:"adaptive_profiles"`
	RangeADXThreshold       float64 `json:"range_adx_threshold" yaml:"range_adx_threshold"`
	VolatileATRPctThreshold float64 `json:"volatile_atr_pct_threshold" yaml:"volatile_atr_pct_threshold"`

	Profiles ProfileSet `json:"profiles" yaml:"profiles"`
}

// DefaultTradingSettings returns the stock settings
func DefaultTradingSettings() TradingSettings {
	return TradingSettings{
		TradingMode:    ModePaper,
		Symbols:        []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		InitialBalance: 1000,

		MaxOpenPositions:         5,
		PositionSizePct:          10,
		DynamicSizing:            true,
		StrongBuyPositionSizePct: 15,
		LossCooldownHours:        4,

		RequireMTFConfirmation: false,
		ConfirmationMaxCandles: 3,

		UseVolumeFilter:  true,
		VolumeMultiplier: 1.5,
		UseOBVFilter:     true,
		UseCVDFilter:     true,

		UseRSI1hFilter:   true,
		RSI1hOverbought:  70,
		UseRSI15mFilter:  true,
		RSI15mOverbought: 75,

		ImpulseBodyRatio:        0.70,
		ImpulseVolumeMultiplier: 2.0,

		IgnitionPriceSpikePct:    2.0,
		IgnitionVolumeMultiplier: 3.0,
		IgnitionTrailingEnabled:  true,

		AdaptiveProfiles:        true,
		RangeADXThreshold:       20,
		VolatileATRPctThreshold: 1.5,

		Profiles: DefaultProfiles(),
	}
}

// DefaultProfiles returns the stock parameter set for every profile
func DefaultProfiles() ProfileSet {
	return ProfileSet{
		Sniper: TradeParameters{
			Profile:                  ProfileSniper,
			RiskRewardRatio:          3.0,
			StopLossMode:             StopLossATR,
			ATRMultiplier:            1.5,
			StopLossPct:              2.0,
			PartialTPEnabled:         true,
			PartialTPTriggerR:        1.5,
			PartialTPSizePct:         50,
			BreakevenEnabled:         true,
			BreakevenTriggerR:        1.0,
			AdaptiveTrailingEnabled:  true,
			TrailingATRMultiplier:    2.0,
			TrailingTightenR:         2.0,
			TrailingTightenReduction: 0.5,
		},
		Scalper: TradeParameters{
			Profile:         ProfileScalper,
			RiskRewardRatio: 1.5,
			StopLossMode:    StopLossPercent,
			StopLossPct:     0.8,
		},
		VolatilityHunter: TradeParameters{
			Profile:                  ProfileVolatilityHunter,
			RiskRewardRatio:          2.5,
			StopLossMode:             StopLossATR,
			ATRMultiplier:            2.5,
			StopLossPct:              3.0,
			BreakevenEnabled:         true,
			BreakevenTriggerR:        1.0,
			AdaptiveTrailingEnabled:  true,
			TrailingATRMultiplier:    2.5,
			TrailingTightenR:         2.0,
			TrailingTightenReduction: 0.3,
		},
		Ignition: TradeParameters{
			Profile:         ProfileIgnition,
			RiskRewardRatio: 2.0,
			StopLossMode:    StopLossPercent,
			StopLossPct:     3.0,
			TrailingPct:     1.5,
		},
		Manual: TradeParameters{
			Profile:           ProfileManual,
			RiskRewardRatio:   2.0,
			StopLossMode:      StopLossATR,
			ATRMultiplier:     2.0,
			StopLossPct:       2.0,
			BreakevenEnabled:  true,
			BreakevenTriggerR: 1.0,
		},
	}
}

// Validate checks the settings for values the engine cannot act on
func (s TradingSettings) Validate() error {
	var errs []error

	if s.TradingMode != ModePaper && s.TradingMode != ModeLive {
		errs = append(errs, fmt.Errorf("unknown trading mode %q", s.TradingMode))
	}
	if s.MaxOpenPositions <= 0 {
		errs = append(errs, errors.New("max_open_positions must be positive"))
	}
	if s.PositionSizePct <= 0 || s.PositionSizePct > 100 {
		errs = append(errs, fmt.Errorf("position_size_pct out of range: %.2f", s.PositionSizePct))
	}
	if s.DynamicSizing && (s.StrongBuyPositionSizePct <= 0 || s.StrongBuyPositionSizePct > 100) {
		errs = append(errs, fmt.Errorf("strong_buy_position_size_pct out of range: %.2f", s.StrongBuyPositionSizePct))
	}
	if s.ConfirmationMaxCandles <= 0 {
		errs = append(errs, errors.New("confirmation_max_candles must be positive"))
	}
	if s.LossCooldownHours < 0 {
		errs = append(errs, fmt.Errorf("loss_cooldown_hours must not be negative: %.2f", s.LossCooldownHours))
	}
	if s.RangeADXThreshold <= 0 {
		errs = append(errs, errors.New("range_adx_threshold must be positive"))
	}
	if s.VolatileATRPctThreshold <= 0 {
		errs = append(errs, errors.New("volatile_atr_pct_threshold must be positive"))
	}

	for _, p := range []TradeParameters{
		s.Profiles.Sniper, s.Profiles.Scalper, s.Profiles.VolatilityHunter,
		s.Profiles.Ignition, s.Profiles.Manual,
	} {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Validate checks a single parameter set
func (p TradeParameters) Validate() error {
	if p.RiskRewardRatio <= 0 {
		return fmt.Errorf("%s: risk_reward_ratio must be positive", p.Profile)
	}
	switch p.StopLossMode {
	case StopLossATR:
		if p.ATRMultiplier <= 0 {
			return fmt.Errorf("%s: atr_multiplier must be positive", p.Profile)
		}
	case StopLossPercent:
	default:
		return fmt.Errorf("%s: unknown stop_loss_mode %q", p.Profile, p.StopLossMode)
	}
	// Percent stop is also the fallback when ATR is unavailable
	if p.StopLossPct <= 0 {
		return fmt.Errorf("%s: stop_loss_pct must be positive", p.Profile)
	}
	if p.PartialTPEnabled && (p.PartialTPSizePct <= 0 || p.PartialTPSizePct >= 100) {
		return fmt.Errorf("%s: partial_tp_size_pct must be in (0, 100)", p.Profile)
	}
	if p.Profile == ProfileIgnition && (p.TrailingPct <= 0 || p.TrailingPct >= 100) {
		return fmt.Errorf("%s: trailing_pct must be in (0, 100)", p.Profile)
	}
	return nil
}
