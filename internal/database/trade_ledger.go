package database

import (
	"context"
	"fmt"
	"time"

	"binance-signal-engine/internal/state"
)

// TradeRecord is one row of the trades table
type TradeRecord struct {
	ID                 int64      `json:"id"`
	Symbol             string     `json:"symbol"`
	Strategy           string     `json:"strategy"`
	Profile            string     `json:"profile"`
	Tier               int        `json:"tier"`
	EntryPrice         float64    `json:"entry_price"`
	Quantity           float64    `json:"quantity"`
	TotalCost          float64    `json:"total_cost"`
	StopLoss           float64    `json:"stop_loss"`
	TakeProfit         float64    `json:"take_profit"`
	EntryTime          time.Time  `json:"entry_time"`
	ExitPrice          *float64   `json:"exit_price,omitempty"`
	ExitTime           *time.Time `json:"exit_time,omitempty"`
	ExitReason         *string    `json:"exit_reason,omitempty"`
	RealizedPartialPnL float64    `json:"realized_partial_pnl"`
	PnL                *float64   `json:"pnl,omitempty"`
	PnLPercent         *float64   `json:"pnl_percent,omitempty"`
	Status             string     `json:"status"`
}

// RecordFromPosition maps a position onto a ledger row
func RecordFromPosition(p *state.Position) TradeRecord {
	rec := TradeRecord{
		ID:                 p.ID,
		Symbol:             p.Symbol,
		Strategy:           string(p.StrategyType),
		Profile:            string(p.ActiveProfile),
		EntryPrice:         p.EntryPrice,
		Quantity:           p.Quantity,
		TotalCost:          p.TotalCostUSD,
		StopLoss:           p.StopLoss,
		TakeProfit:         p.TakeProfit,
		EntryTime:          p.EntryTime,
		RealizedPartialPnL: p.RealizedPartialPnL,
		Status:             string(p.Status),
	}
	if p.EntrySnapshot != nil {
		rec.Tier = int(p.EntrySnapshot.Tier)
	}
	if !p.IsOpen() {
		exit, pnl, pct, reason := p.ExitPrice, p.PnL, p.PnLPct, p.ExitReason
		rec.ExitPrice = &exit
		rec.ExitTime = p.ExitTime
		rec.ExitReason = &reason
		rec.PnL = &pnl
		rec.PnLPercent = &pct
	}
	return rec
}

// RecordOpen inserts an opened position
func (db *DB) RecordOpen(ctx context.Context, p *state.Position) error {
	if db.Pool == nil {
		return nil // No database configured
	}

	rec := RecordFromPosition(p)
	query := `
		INSERT INTO trades (
			id, symbol, strategy, profile, tier, entry_price, quantity, total_cost,
			stop_loss, take_profit, initial_stop_loss, entry_time, entry_order_id, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`

	_, err := db.Pool.Exec(ctx, query,
		rec.ID, rec.Symbol, rec.Strategy, rec.Profile, rec.Tier,
		rec.EntryPrice, rec.Quantity, rec.TotalCost,
		rec.StopLoss, rec.TakeProfit, p.InitialStopLoss,
		rec.EntryTime, p.EntryOrderID, rec.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to record opened trade %d: %w", p.ID, err)
	}
	return nil
}

// RecordClose stamps the exit facts on a trade row
func (db *DB) RecordClose(ctx context.Context, p *state.Position) error {
	if db.Pool == nil {
		return nil
	}

	query := `
		UPDATE trades SET
			quantity = $2, total_cost = $3, stop_loss = $4,
			exit_price = $5, exit_time = $6, exit_reason = $7,
			realized_partial_pnl = $8, pnl = $9, pnl_percent = $10,
			status = $11, updated_at = NOW()
		WHERE id = $1`

	tag, err := db.Pool.Exec(ctx, query,
		p.ID, p.Quantity, p.TotalCostUSD, p.StopLoss,
		p.ExitPrice, p.ExitTime, p.ExitReason,
		p.RealizedPartialPnL, p.PnL, p.PnLPct,
		string(p.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to record closed trade %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		db.logger.Warn().Int64("trade_id", p.ID).Msg("Closed trade had no open row, inserting")
		if err := db.RecordOpen(ctx, p); err != nil {
			return err
		}
		return db.RecordClose(ctx, p)
	}
	return nil
}

// GetRecentTrades returns the latest trades, newest first
func (db *DB) GetRecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	if db.Pool == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, symbol, strategy, profile, tier, entry_price, quantity, total_cost,
			stop_loss, take_profit, entry_time, exit_price, exit_time, exit_reason,
			realized_partial_pnl, pnl, pnl_percent, status
		FROM trades
		ORDER BY entry_time DESC
		LIMIT $1`

	rows, err := db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(
			&t.ID, &t.Symbol, &t.Strategy, &t.Profile, &t.Tier,
			&t.EntryPrice, &t.Quantity, &t.TotalCost,
			&t.StopLoss, &t.TakeProfit, &t.EntryTime,
			&t.ExitPrice, &t.ExitTime, &t.ExitReason,
			&t.RealizedPartialPnL, &t.PnL, &t.PnLPercent, &t.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
