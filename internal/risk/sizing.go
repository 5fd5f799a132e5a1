package risk

import (
	"errors"
	"fmt"

	"binance-signal-engine/config"
)

var (
	// ErrInvalidRisk is returned when the stop sits at or above the entry price
	ErrInvalidRisk = errors.New("invalid risk per unit")
	// ErrInsufficientBalance is returned when sizing yields no notional
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// EntryPlan is the sized and priced entry for one signal
type EntryPlan struct {
	Params      config.TradeParameters `json:"params"`
	Price       float64                `json:"price"`
	SizePct     float64                `json:"size_pct"`
	Notional    float64                `json:"notional"`
	Quantity    float64                `json:"quantity"`
	StopLoss    float64                `json:"stop_loss"`
	TakeProfit  float64                `json:"take_profit"`
	RiskPerUnit float64                `json:"risk_per_unit"`
	ATR         float64                `json:"atr"`
}

// PositionSizePct returns the strong-buy percentage when dynamic sizing is
// on and the signal is strong, else the base percentage.
func PositionSizePct(s config.TradingSettings, strongBuy bool) float64 {
	if s.DynamicSizing && strongBuy {
		return s.StrongBuyPositionSizePct
	}
	return s.PositionSizePct
}

// StopLossPrice places the initial stop. ATR mode falls back to the
// percentage stop when no ATR is available.
func StopLossPrice(price, atr float64, p config.TradeParameters) float64 {
	if p.StopLossMode == config.StopLossATR && atr > 0 {
		return price - atr*p.ATRMultiplier
	}
	return price * (1 - p.StopLossPct/100)
}

// PlanEntry sizes a position of sizePct of balance at price and derives its
// stop and target from params.
func PlanEntry(balance, price, sizePct, atr float64, params config.TradeParameters) (*EntryPlan, error) {
	if price <= 0 {
		return nil, fmt.Errorf("invalid entry price %.8f", price)
	}

	notional := balance * (sizePct / 100)
	if notional <= 0 {
		return nil, fmt.Errorf("%w: balance %.2f, size %.2f%%", ErrInsufficientBalance, balance, sizePct)
	}

	stop := StopLossPrice(price, atr, params)
	riskPerUnit := price - stop
	if riskPerUnit <= 0 {
		return nil, fmt.Errorf("%w: price %.8f, stop %.8f", ErrInvalidRisk, price, stop)
	}

	return &EntryPlan{
		Params:      params,
		Price:       price,
		SizePct:     sizePct,
		Notional:    notional,
		Quantity:    notional / price,
		StopLoss:    stop,
		TakeProfit:  price + riskPerUnit*params.RiskRewardRatio,
		RiskPerUnit: riskPerUnit,
		ATR:         atr,
	}, nil
}

// RepriceAtFill re-derives stop, target and risk per unit from the executed
// price, keeping the planned quantity and notional.
func RepriceAtFill(plan *EntryPlan, fillPrice float64) (*EntryPlan, error) {
	if fillPrice <= 0 || fillPrice == plan.Price {
		out := *plan
		return &out, nil
	}

	stop := StopLossPrice(fillPrice, plan.ATR, plan.Params)
	riskPerUnit := fillPrice - stop
	if riskPerUnit <= 0 {
		return nil, fmt.Errorf("%w: fill %.8f, stop %.8f", ErrInvalidRisk, fillPrice, stop)
	}

	out := *plan
	out.Price = fillPrice
	out.StopLoss = stop
	out.TakeProfit = fillPrice + riskPerUnit*plan.Params.RiskRewardRatio
	out.RiskPerUnit = riskPerUnit
	return &out, nil
}
