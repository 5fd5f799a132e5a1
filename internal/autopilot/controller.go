package autopilot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"binance-signal-engine/config"
	"binance-signal-engine/internal/binance"
	"binance-signal-engine/internal/circuit"
	"binance-signal-engine/internal/events"
	"binance-signal-engine/internal/logging"
	"binance-signal-engine/internal/metrics"
	"binance-signal-engine/internal/risk"
	"binance-signal-engine/internal/state"
	"binance-signal-engine/internal/strategy"

	"github.com/rs/zerolog"
)

// ErrPositionNotFound is returned by ManualClose for an unknown id
var ErrPositionNotFound = state.ErrPositionNotFound

// SignalClassifier turns a snapshot into a signal
type SignalClassifier interface {
	Classify(ctx context.Context, snap *strategy.Snapshot, settings config.TradingSettings) (*strategy.Signal, error)
}

// TradeRecorder receives opened and closed positions for an external ledger
type TradeRecorder interface {
	RecordOpen(ctx context.Context, p *state.Position) error
	RecordClose(ctx context.Context, p *state.Position) error
}

// Intervals configures the background loops started by Run
type Intervals struct {
	Eviction time.Duration `json:"eviction"`
	Persist  time.Duration `json:"persist"`
}

// DefaultIntervals returns the stock loop intervals
func DefaultIntervals() Intervals {
	return Intervals{
		Eviction: 30 * time.Second,
		Persist:  30 * time.Second,
	}
}

// Controller drives the decision stream: it classifies closed candles,
// gates and opens positions, and monitors them on every price tick.
type Controller struct {
	state      *state.BotState
	windows    *strategy.WindowSet
	classifier SignalClassifier
	gates      *risk.Manager
	executor   binance.OrderExecutor
	formatter  *risk.QuantityFormatter
	bus        *events.EventBus
	store      state.Store
	recorder   TradeRecorder
	intervals  Intervals
	logger     zerolog.Logger
	now        func() time.Time

	mu          sync.RWMutex
	lastSignals map[string]strategy.Signal
}

var _ binance.StreamHandler = (*Controller)(nil)

// NewController creates a controller over st. rules may be nil, in which
// case quantities use the default precision.
func NewController(
	st *state.BotState,
	windows *strategy.WindowSet,
	executor binance.OrderExecutor,
	rules binance.SymbolRules,
	bus *events.EventBus,
	logger zerolog.Logger,
) *Controller {
	return &Controller{
		state:       st,
		windows:     windows,
		classifier:  strategy.NewClassifier(),
		gates:       risk.NewManager(st, st.Cooldown()),
		executor:    executor,
		formatter:   risk.NewQuantityFormatter(rules),
		bus:         bus,
		intervals:   DefaultIntervals(),
		logger:      logging.Component(logger, "autopilot"),
		now:         time.Now,
		lastSignals: make(map[string]strategy.Signal),
	}
}

// SetClassifier replaces the signal classifier
func (c *Controller) SetClassifier(classifier SignalClassifier) {
	c.classifier = classifier
}

// SetStore enables persistence of settings and state
func (c *Controller) SetStore(store state.Store) {
	c.store = store
}

// SetRecorder enables the external trade ledger
func (c *Controller) SetRecorder(recorder TradeRecorder) {
	c.recorder = recorder
}

// SetIntervals overrides the background loop intervals
func (c *Controller) SetIntervals(intervals Intervals) {
	c.intervals = intervals
}

// SetClock replaces the clock used for entry, exit and cooldown times
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
	c.gates.WithClock(now)
}

// State returns the owned state container
func (c *Controller) State() *state.BotState {
	return c.state
}

// LastSignals returns the most recent signal per symbol
func (c *Controller) LastSignals() map[string]strategy.Signal {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]strategy.Signal, len(c.lastSignals))
	for k, v := range c.lastSignals {
		out[k] = v
	}
	return out
}

// OnPriceTick caches the price and runs the exit checks for symbol
func (c *Controller) OnPriceTick(ctx context.Context, symbol string, price float64, at time.Time) {
	if price <= 0 {
		return
	}
	c.state.UpdatePrice(symbol, price, at)
	c.MonitorPosition(ctx, symbol, price)
}

// OnCandleClosed appends the candle to its window. A 5m close resolves the
// pending confirmation for symbol; a 1m close triggers classification.
func (c *Controller) OnCandleClosed(ctx context.Context, symbol string, tf binance.KlineTimeframe, k binance.Kline) {
	if !c.windows.Push(symbol, tf, k) {
		return
	}

	switch tf {
	case binance.Timeframe5m:
		c.resolveConfirmation(ctx, symbol, k)
	case binance.Timeframe1m:
		if _, err := c.EvaluateSymbol(ctx, symbol); err != nil {
			c.logger.Error().Err(err).Str("symbol", symbol).Msg("Classification failed")
		}
	}
}

// EvaluateSymbol classifies the current windows of symbol and acts on an
// actionable result.
func (c *Controller) EvaluateSymbol(ctx context.Context, symbol string) (*strategy.Signal, error) {
	settings := c.state.Settings()
	price, _ := c.state.LastPrice(symbol)

	snap := c.windows.Snapshot(symbol, price)
	sig, err := c.classifier.Classify(ctx, snap, settings)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", symbol, err)
	}

	c.mu.Lock()
	c.lastSignals[symbol] = *sig
	c.mu.Unlock()

	if sig.Strategy == strategy.StrategyNone {
		return sig, nil
	}

	metrics.SignalsTotal.WithLabelValues(string(sig.Strategy), fmt.Sprintf("%d", sig.Tier)).Inc()
	c.bus.PublishSignal(symbol, string(sig.Strategy), int(sig.Tier), sig.ConditionsMet, sig.Price)

	if !sig.Actionable {
		return sig, nil
	}

	if sig.RequiresConfirmation {
		replaced := c.state.Confirmations().Hold(*sig)
		c.logger.Info().
			Str("symbol", symbol).
			Bool("replaced", replaced).
			Float64("price", sig.Price).
			Msg("Signal held for 5m confirmation")
		c.bus.PublishConfirmation(events.EventConfirmationPending, symbol, "pending")
		c.syncGauges()
		return sig, nil
	}

	if _, err := c.HandleSignal(ctx, sig); err != nil && !isExpectedRejection(err) {
		return sig, err
	}
	return sig, nil
}

// resolveConfirmation consumes a pending entry against a closed 5m candle
func (c *Controller) resolveConfirmation(ctx context.Context, symbol string, k binance.Kline) {
	// an entry past its window must never be promoted
	c.EvictStaleConfirmations()

	promoted, outcome := c.state.Confirmations().Resolve(symbol, k)
	if outcome == "" {
		return
	}

	metrics.ConfirmationsTotal.WithLabelValues(string(outcome)).Inc()
	c.bus.PublishConfirmation(events.EventConfirmationResolved, symbol, string(outcome))
	c.logger.Info().
		Str("symbol", symbol).
		Str("outcome", string(outcome)).
		Float64("open", k.Open).
		Float64("close", k.Close).
		Msg("Confirmation resolved")
	c.syncGauges()

	if promoted == nil {
		return
	}
	if _, err := c.HandleSignal(ctx, promoted); err != nil && !isExpectedRejection(err) {
		c.logger.Error().Err(err).Str("symbol", symbol).Msg("Promoted signal failed to open")
	}
}

// EvictStaleConfirmations drops pending entries that saw no 5m close within
// ConfirmationMaxCandles candles.
func (c *Controller) EvictStaleConfirmations() int {
	settings := c.state.Settings()
	maxAge := time.Duration(settings.ConfirmationMaxCandles) * binance.Timeframe5m.Duration()

	evicted := c.state.Confirmations().Evict(maxAge)
	for _, entry := range evicted {
		metrics.ConfirmationsTotal.WithLabelValues("expired").Inc()
		c.bus.PublishConfirmation(events.EventConfirmationResolved, entry.Symbol, "expired")
		c.logger.Warn().
			Str("symbol", entry.Symbol).
			Time("created_at", entry.CreatedAt).
			Msg("Pending confirmation expired without a 5m close")
	}
	if len(evicted) > 0 {
		c.syncGauges()
	}
	return len(evicted)
}

// Pause stops new entries; open positions keep being monitored
func (c *Controller) Pause() {
	c.state.SetPaused(true)
	c.logger.Warn().Msg("Trading paused")
	c.bus.PublishStateChanged("paused")
}

// Resume re-enables new entries
func (c *Controller) Resume() {
	c.state.SetPaused(false)
	c.logger.Info().Msg("Trading resumed")
	c.bus.PublishStateChanged("resumed")
}

// ResetCooldown lifts the loss cooldown of symbol. It reports whether a
// cooldown was active.
func (c *Controller) ResetCooldown(ctx context.Context, symbol string) bool {
	cooldown := c.state.Cooldown()
	active := cooldown.State(symbol, c.now()) == circuit.StateOpen
	cooldown.ForceReset(symbol)
	if !active {
		return false
	}

	c.logger.Warn().Str("symbol", symbol).Msg("Loss cooldown reset by operator")
	c.bus.PublishLog("WARN", symbol, "loss cooldown reset")

	if c.store != nil {
		if err := c.store.Save(ctx, state.KindState, c.state.Snapshot()); err != nil {
			c.logger.Error().Err(err).Msg("Failed to persist state after cooldown reset")
		}
	}
	return true
}

// UpdateSettings validates and swaps the settings wholesale
func (c *Controller) UpdateSettings(ctx context.Context, settings config.TradingSettings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	c.state.ReplaceSettings(settings)
	c.bus.Publish(events.Event{
		Type:      events.EventSettingsUpdated,
		Timestamp: c.now(),
		Data:      map[string]interface{}{"paused": settings.Paused, "symbols": settings.Symbols},
	})

	if c.store != nil {
		if err := c.store.Save(ctx, state.KindSettings, settings); err != nil {
			c.logger.Error().Err(err).Msg("Failed to persist settings")
		}
	}
	return nil
}

// Run starts the eviction and persistence loops and blocks until ctx is
// done. State is persisted once more on the way out.
func (c *Controller) Run(ctx context.Context) error {
	eviction := time.NewTicker(c.intervals.Eviction)
	defer eviction.Stop()
	persist := time.NewTicker(c.intervals.Persist)
	defer persist.Stop()

	c.logger.Info().
		Dur("eviction_interval", c.intervals.Eviction).
		Dur("persist_interval", c.intervals.Persist).
		Msg("Controller started")

	for {
		select {
		case <-ctx.Done():
			if err := c.Persist(context.WithoutCancel(ctx)); err != nil {
				c.logger.Error().Err(err).Msg("Final persist failed")
			}
			c.logger.Info().Msg("Controller stopped")
			return nil
		case <-eviction.C:
			c.EvictStaleConfirmations()
			c.state.Cooldown().Prune(c.now())
		case <-persist.C:
			if err := c.Persist(ctx); err != nil {
				c.logger.Error().Err(err).Msg("Periodic persist failed")
			}
		}
	}
}

func (c *Controller) placeOrder(ctx context.Context, symbol string, side binance.OrderSide, quantity string) (*binance.Fill, error) {
	started := time.Now()
	fill, err := c.executor.PlaceMarketOrder(ctx, symbol, side, quantity)
	metrics.ObserveOrder(string(side), started, err)
	return fill, err
}

func (c *Controller) syncGauges() {
	metrics.OpenPositions.Set(float64(c.state.OpenPositionCount()))
	metrics.Balance.Set(c.state.Balance())
	metrics.PendingConfirmations.Set(float64(c.state.Confirmations().Len()))
}

// isExpectedRejection reports gate and risk rejections that are part of
// normal operation rather than failures.
func isExpectedRejection(err error) bool {
	return errors.Is(err, risk.ErrPaused) ||
		errors.Is(err, risk.ErrMaxPositions) ||
		errors.Is(err, risk.ErrDuplicatePosition) ||
		errors.Is(err, risk.ErrSymbolCooldown) ||
		errors.Is(err, risk.ErrInvalidRisk)
}
