package autopilot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"binance-signal-engine/internal/binance"
	"binance-signal-engine/internal/logging"
	"binance-signal-engine/internal/metrics"
	"binance-signal-engine/internal/risk"
	"binance-signal-engine/internal/state"
	"binance-signal-engine/internal/strategy"
)

// HandleSignal gates, sizes and opens a position for an actionable signal.
// Nothing is recorded unless the entry order fills.
func (c *Controller) HandleSignal(ctx context.Context, sig *strategy.Signal) (*state.Position, error) {
	ctx, logger := logging.WithTraceContext(ctx, c.logger.With().Str("symbol", sig.Symbol).Logger())

	unlock := c.state.LockSymbol(sig.Symbol)
	defer unlock()

	settings := c.state.Settings()
	if err := c.gates.CanOpenPosition(sig.Symbol, settings); err != nil {
		metrics.GateRejectionsTotal.WithLabelValues(risk.GateReason(err)).Inc()
		logger.Info().Err(err).Str("strategy", string(sig.Strategy)).Msg("Entry rejected by gate")
		return nil, err
	}

	params := strategy.SelectProfile(sig, settings)

	price, ok := c.state.LastPrice(sig.Symbol)
	if !ok {
		price = sig.Price
	}
	var atr float64
	if sig.Regime != nil {
		atr = sig.Regime.ATR
	}

	sizePct := risk.PositionSizePct(settings, sig.Tier.IsStrongBuy())
	plan, err := risk.PlanEntry(c.state.Balance(), price, sizePct, atr, params)
	if err != nil {
		metrics.GateRejectionsTotal.WithLabelValues(risk.GateReason(err)).Inc()
		logger.Warn().Err(err).
			Str("profile", string(params.Profile)).
			Float64("price", price).
			Float64("atr", atr).
			Msg("Trade abandoned")
		c.bus.PublishLog("WARN", sig.Symbol, "trade abandoned: "+err.Error())
		return nil, err
	}

	qtyStr, qty := c.formatter.Format(sig.Symbol, plan.Quantity)
	if qty <= 0 {
		return nil, fmt.Errorf("%s quantity %.8f below lot step: %w", sig.Symbol, plan.Quantity, risk.ErrInsufficientBalance)
	}

	fill, err := c.placeOrder(ctx, sig.Symbol, binance.SideBuy, qtyStr)
	if err != nil {
		logger.Error().Err(err).Str("quantity", qtyStr).Msg("Entry order failed, no position opened")
		c.bus.PublishError("autopilot", "entry order failed for "+sig.Symbol, err)
		return nil, fmt.Errorf("entry order %s: %w", sig.Symbol, err)
	}

	// stop and target follow the executed price, not the quote
	plan, err = risk.RepriceAtFill(plan, fill.ExecutedPrice)
	if err != nil {
		metrics.GateRejectionsTotal.WithLabelValues(risk.GateReason(err)).Inc()
		logger.Warn().Err(err).
			Float64("quoted", price).
			Float64("filled", fill.ExecutedPrice).
			Msg("Fill slipped past the stop, unwinding entry")
		c.bus.PublishLog("WARN", sig.Symbol, "entry unwound: "+err.Error())
		c.unwindEntry(ctx, sig.Symbol, fill)
		return nil, err
	}

	signal := *sig
	position := &state.Position{
		ID:                     c.state.NextTradeID(),
		Symbol:                 sig.Symbol,
		EntryPrice:             fill.ExecutedPrice,
		AverageEntryPrice:      fill.ExecutedPrice,
		Quantity:               fill.ExecutedQuantity,
		TargetQuantity:         qty,
		EntryTime:              c.now(),
		TotalCostUSD:           fill.ExecutedPrice * fill.ExecutedQuantity,
		EntrySnapshot:          &signal,
		EntryOrderID:           fill.ClientOrderID,
		StopLoss:               plan.StopLoss,
		TakeProfit:             plan.TakeProfit,
		HighestPriceSinceEntry: fill.ExecutedPrice,
		InitialStopLoss:        plan.StopLoss,
		InitialRiskPerUnit:     plan.RiskPerUnit,
		ATRAtEntry:             atr,
		StrategyType:           sig.Strategy,
		ActiveProfile:          params.Profile,
		TradeParams:            params,
		Status:                 state.StatusFilled,
	}

	if err := c.state.AddPosition(position); err != nil {
		// unreachable while the symbol lock and gates hold
		logger.Error().Err(err).Str("order_id", fill.ClientOrderID).Msg("Filled entry could not be recorded")
		return nil, err
	}

	plog := logging.PositionContext(logger, position.ID, position.Symbol)
	plog.Info().
		Str("strategy", string(sig.Strategy)).
		Str("profile", string(params.Profile)).
		Float64("entry", position.EntryPrice).
		Float64("quantity", position.Quantity).
		Float64("stop_loss", position.StopLoss).
		Float64("take_profit", position.TakeProfit).
		Float64("size_pct", sizePct).
		Msg("Position opened")

	metrics.TradesOpenedTotal.WithLabelValues(string(sig.Strategy), string(params.Profile)).Inc()
	c.syncGauges()
	c.bus.PublishTradeOpened(position.ID, position.Symbol, string(sig.Strategy), string(params.Profile),
		position.EntryPrice, position.Quantity, position.StopLoss, position.TakeProfit)
	c.bus.PublishStateChanged("trade_opened")

	if c.recorder != nil {
		if err := c.recorder.RecordOpen(ctx, position.Clone()); err != nil {
			plog.Error().Err(err).Msg("Failed to record opened trade")
		}
	}

	return position.Clone(), nil
}

// unwindEntry sells back a fill that could not become a position
func (c *Controller) unwindEntry(ctx context.Context, symbol string, fill *binance.Fill) {
	qtyStr, qty := c.formatter.Format(symbol, fill.ExecutedQuantity)
	if qty <= 0 {
		return
	}
	if _, err := c.placeOrder(context.WithoutCancel(ctx), symbol, binance.SideSell, qtyStr); err != nil {
		c.logger.Error().Err(err).
			Str("symbol", symbol).
			Str("quantity", qtyStr).
			Bool("ledger_diverged", true).
			Msg("Unwind order failed; reconcile with the exchange")
		c.bus.PublishLog("ERROR", symbol, "unwind order failed, ledger diverged: "+err.Error())
	}
}

// MonitorPosition runs the exit rules for the open position on symbol
func (c *Controller) MonitorPosition(ctx context.Context, symbol string, price float64) {
	if !c.state.HasOpenPosition(symbol) {
		return
	}

	unlock := c.state.LockSymbol(symbol)
	defer unlock()

	pos, ok := c.state.PositionBySymbol(symbol)
	if !ok {
		return
	}

	settings := c.state.Settings()
	var d risk.TickDecision
	updated, err := c.state.UpdatePosition(pos.ID, func(p *state.Position) {
		d = risk.EvaluateTick(p, price, settings.IgnitionTrailingEnabled)
	})
	if err != nil {
		return
	}

	plog := logging.PositionContext(c.logger, updated.ID, updated.Symbol)
	for _, u := range d.StopUpdates {
		plog.Info().
			Str("reason", u.Reason).
			Float64("old_stop", u.OldStopLoss).
			Float64("new_stop", u.NewStopLoss).
			Msg("Stop moved")
		c.bus.PublishStopMoved(updated.ID, updated.Symbol, u.Reason, u.OldStopLoss, u.NewStopLoss)
	}
	if d.Tightened {
		plog.Info().Float64("r", updated.RMultiple(price)).Msg("Trailing multiplier tightened")
	}

	switch {
	case d.Exit:
		if _, err := c.closeLocked(ctx, updated, d.ExitPrice, string(d.Reason)); err != nil {
			plog.Error().Err(err).Msg("Close failed")
		}
	case d.PartialQuantity > 0:
		c.takePartialLocked(ctx, updated, d.PartialQuantity, price)
	}
}

// ManualClose closes position id at price, or at the last cached price when
// price is not positive.
func (c *Controller) ManualClose(ctx context.Context, id int64, price float64) (*state.Position, error) {
	pos, ok := c.state.Position(id)
	if !ok {
		return nil, fmt.Errorf("position %d: %w", id, ErrPositionNotFound)
	}

	unlock := c.state.LockSymbol(pos.Symbol)
	defer unlock()

	// may have closed while waiting for the lock
	pos, ok = c.state.Position(id)
	if !ok {
		return nil, fmt.Errorf("position %d: %w", id, ErrPositionNotFound)
	}

	if price <= 0 {
		if last, ok := c.state.LastPrice(pos.Symbol); ok {
			price = last
		} else {
			price = pos.EntryPrice
		}
	}

	return c.closeLocked(ctx, pos, price, string(risk.ExitManual))
}

// closeLocked sells the remaining quantity and settles the position at
// exitPrice. A failed sell order is logged and the local close proceeds.
func (c *Controller) closeLocked(ctx context.Context, pos *state.Position, exitPrice float64, reason string) (*state.Position, error) {
	plog := logging.PositionContext(c.logger, pos.ID, pos.Symbol)
	ctx = context.WithoutCancel(ctx)

	qtyStr, _ := c.formatter.Format(pos.Symbol, pos.Quantity)
	if _, err := c.placeOrder(ctx, pos.Symbol, binance.SideSell, qtyStr); err != nil {
		plog.Error().Err(err).
			Str("quantity", qtyStr).
			Bool("ledger_diverged", true).
			Msg("Exit order failed, closing locally; reconcile with the exchange")
		c.bus.PublishLog("ERROR", pos.Symbol, "exit order failed, ledger diverged: "+err.Error())
		c.bus.PublishError("autopilot", "exit order failed for "+pos.Symbol, err)
	}

	now := c.now()
	closed, err := c.state.ClosePosition(pos.ID, exitPrice, now, reason)
	if err != nil {
		if errors.Is(err, state.ErrPositionNotFound) {
			return nil, fmt.Errorf("position %d: %w", pos.ID, ErrPositionNotFound)
		}
		return nil, err
	}

	settings := c.state.Settings()
	cooldown := time.Duration(settings.LossCooldownHours * float64(time.Hour))
	if c.state.Cooldown().RecordClose(closed.Symbol, closed.PnL, now, cooldown) {
		plog.Warn().Dur("cooldown", cooldown).Msg("Symbol entered loss cooldown")
	}

	plog.Info().
		Str("reason", reason).
		Float64("entry", closed.AverageEntryPrice).
		Float64("exit", closed.ExitPrice).
		Float64("quantity", closed.Quantity).
		Float64("pnl", closed.PnL).
		Float64("pnl_pct", closed.PnLPct).
		Msg("Position closed")

	metrics.TradesClosedTotal.WithLabelValues(reason).Inc()
	metrics.TradePnL.WithLabelValues(string(closed.StrategyType)).Observe(closed.PnLPct)
	c.syncGauges()
	c.bus.PublishTradeClosed(closed.ID, closed.Symbol, reason, closed.AverageEntryPrice,
		closed.ExitPrice, closed.Quantity, closed.PnL, closed.PnLPct)
	c.bus.PublishStateChanged("trade_closed")

	if c.recorder != nil {
		if err := c.recorder.RecordClose(ctx, closed); err != nil {
			plog.Error().Err(err).Msg("Failed to record closed trade")
		}
	}

	return closed, nil
}

// takePartialLocked scales out rawQty at price. The partial is attempted
// once; a failed or sub-step order just marks it taken.
func (c *Controller) takePartialLocked(ctx context.Context, pos *state.Position, rawQty, price float64) {
	plog := logging.PositionContext(c.logger, pos.ID, pos.Symbol)
	markTaken := func() {
		_, _ = c.state.UpdatePosition(pos.ID, func(p *state.Position) { p.PartialTaken = true })
	}

	qtyStr, qty := c.formatter.Format(pos.Symbol, rawQty)
	if qty <= 0 || qty >= pos.Quantity {
		plog.Warn().Float64("raw_quantity", rawQty).Msg("Partial take-profit skipped, quantity off lot step")
		markTaken()
		return
	}

	fill, err := c.placeOrder(context.WithoutCancel(ctx), pos.Symbol, binance.SideSell, qtyStr)
	if err != nil {
		plog.Error().Err(err).Str("quantity", qtyStr).Msg("Partial take-profit order failed")
		markTaken()
		return
	}

	exitPrice := price
	if fill.ExecutedPrice > 0 {
		exitPrice = fill.ExecutedPrice
	}
	sold := qty
	if fill.ExecutedQuantity > 0 && fill.ExecutedQuantity < pos.Quantity {
		sold = fill.ExecutedQuantity
	}

	updated, realized, err := c.state.ApplyPartialExit(pos.ID, sold, exitPrice)
	if err != nil {
		plog.Error().Err(err).Msg("Partial take-profit could not be applied")
		markTaken()
		return
	}

	plog.Info().
		Float64("price", exitPrice).
		Float64("quantity", sold).
		Float64("remaining", updated.Quantity).
		Float64("realized", realized).
		Msg("Partial take-profit")
	c.syncGauges()
	c.bus.PublishPartialTakeProfit(updated.ID, updated.Symbol, exitPrice, sold, realized)
	c.bus.PublishStateChanged("partial_take_profit")
}
