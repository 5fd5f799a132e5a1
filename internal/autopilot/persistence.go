package autopilot

import (
	"context"
	"errors"
	"fmt"

	"binance-signal-engine/config"
	"binance-signal-engine/internal/state"
)

// Persist saves settings and state through the configured store
func (c *Controller) Persist(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	var errs []error
	if err := c.store.Save(ctx, state.KindSettings, c.state.Settings()); err != nil {
		errs = append(errs, fmt.Errorf("save settings: %w", err))
	}
	if err := c.store.Save(ctx, state.KindState, c.state.Snapshot()); err != nil {
		errs = append(errs, fmt.Errorf("save state: %w", err))
	}
	return errors.Join(errs...)
}

// Restore loads settings and state from the store. Missing documents keep
// the current values.
func (c *Controller) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	var settings config.TradingSettings
	switch err := c.store.Load(ctx, state.KindSettings, &settings); {
	case errors.Is(err, state.ErrNoSnapshot):
	case err != nil:
		return fmt.Errorf("load settings: %w", err)
	default:
		if verr := settings.Validate(); verr != nil {
			c.logger.Warn().Err(verr).Msg("Stored settings invalid, keeping configured settings")
		} else {
			c.state.ReplaceSettings(settings)
		}
	}

	var snap state.Snapshot
	switch err := c.store.Load(ctx, state.KindState, &snap); {
	case errors.Is(err, state.ErrNoSnapshot):
		c.logger.Info().Msg("No stored state, starting fresh")
	case err != nil:
		return fmt.Errorf("load state: %w", err)
	default:
		c.state.Restore(snap)
		c.logger.Info().
			Int("open_positions", len(snap.ActivePositions)).
			Int("closed_trades", len(snap.TradeHistory)).
			Float64("balance", snap.Balance).
			Time("saved_at", snap.SavedAt).
			Msg("State restored")
	}

	c.syncGauges()
	return nil
}
