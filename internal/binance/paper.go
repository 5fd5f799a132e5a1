package binance

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// PriceSource returns the last observed price for a symbol
type PriceSource interface {
	LastPrice(symbol string) (float64, bool)
}

// PaperExecutor fills market orders at the last observed price without
// touching the exchange.
type PaperExecutor struct {
	prices  PriceSource
	orderID atomic.Int64

	mu      sync.Mutex
	failErr error
	orders  []PaperOrder
}

// PaperOrder records one simulated order
type PaperOrder struct {
	Symbol   string
	Side     OrderSide
	Quantity float64
	Fill     Fill
}

// NewPaperExecutor creates a paper executor reading prices from prices
func NewPaperExecutor(prices PriceSource) *PaperExecutor {
	return &PaperExecutor{prices: prices}
}

// FailWith makes every subsequent order fail with err; nil restores fills
func (p *PaperExecutor) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failErr = err
}

// Orders returns the simulated orders placed so far
func (p *PaperExecutor) Orders() []PaperOrder {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PaperOrder, len(p.orders))
	copy(out, p.orders)
	return out
}

// PlaceMarketOrder simulates an immediate full fill
func (p *PaperExecutor) PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, quantity string) (*Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	failErr := p.failErr
	p.mu.Unlock()
	if failErr != nil {
		return nil, failErr
	}

	qty, err := strconv.ParseFloat(quantity, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid quantity %q: %w", quantity, err)
	}
	if qty <= 0 {
		return nil, fmt.Errorf("%s %s %s: %w", side, quantity, symbol, ErrNoFill)
	}

	price, ok := p.prices.LastPrice(symbol)
	if !ok || price <= 0 {
		return nil, fmt.Errorf("no price available for %s", symbol)
	}

	fill := Fill{
		OrderID:          p.orderID.Add(1),
		ClientOrderID:    uuid.NewString(),
		ExecutedPrice:    price,
		ExecutedQuantity: qty,
	}

	p.mu.Lock()
	p.orders = append(p.orders, PaperOrder{Symbol: symbol, Side: side, Quantity: qty, Fill: fill})
	p.mu.Unlock()

	return &fill, nil
}
