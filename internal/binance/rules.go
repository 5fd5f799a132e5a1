package binance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type exchangeInfoSource interface {
	GetExchangeInfo(ctx context.Context) (*ExchangeInfo, error)
}

// RulesCache holds LOT_SIZE step sizes per symbol
type RulesCache struct {
	source      exchangeInfoSource
	mu          sync.RWMutex
	stepSizes   map[string]decimal.Decimal
	lastRefresh time.Time
}

// NewRulesCache creates a cache backed by source. A nil source yields a
// cache that only knows what Set puts in it.
func NewRulesCache(source exchangeInfoSource) *RulesCache {
	return &RulesCache{
		source:    source,
		stepSizes: make(map[string]decimal.Decimal),
	}
}

// Refresh reloads step sizes from exchange info
func (r *RulesCache) Refresh(ctx context.Context) error {
	if r.source == nil {
		return nil
	}

	info, err := r.source.GetExchangeInfo(ctx)
	if err != nil {
		return fmt.Errorf("refresh symbol rules: %w", err)
	}

	steps := make(map[string]decimal.Decimal, len(info.Symbols))
	for _, s := range info.Symbols {
		for _, f := range s.Filters {
			if f.FilterType != "LOT_SIZE" || f.StepSize == "" {
				continue
			}
			step, err := decimal.NewFromString(f.StepSize)
			if err != nil || !step.IsPositive() {
				continue
			}
			steps[s.Symbol] = step
		}
	}

	r.mu.Lock()
	r.stepSizes = steps
	r.lastRefresh = time.Now()
	r.mu.Unlock()

	return nil
}

// Set records a step size for symbol
func (r *RulesCache) Set(symbol string, step decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stepSizes[symbol] = step
}

// StepSize returns the LOT_SIZE step for symbol, if known
func (r *RulesCache) StepSize(symbol string) (decimal.Decimal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	step, ok := r.stepSizes[symbol]
	return step, ok
}

// LastRefresh returns when rules were last loaded
func (r *RulesCache) LastRefresh() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRefresh
}
