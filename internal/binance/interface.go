package binance

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNoFill is returned when the exchange accepted an order but executed nothing
var ErrNoFill = errors.New("order not filled")

// OrderSide is BUY or SELL
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Fill is the executed result of a market order
type Fill struct {
	OrderID          int64   `json:"order_id"`
	ClientOrderID    string  `json:"client_order_id"`
	ExecutedPrice    float64 `json:"executed_price"`
	ExecutedQuantity float64 `json:"executed_quantity"`
}

// OrderExecutor places market orders. Implementations are called at most
// once per open or close decision and never retry on their own.
type OrderExecutor interface {
	PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, quantity string) (*Fill, error)
}

// SymbolRules exposes the LOT_SIZE step size for a symbol
type SymbolRules interface {
	StepSize(symbol string) (decimal.Decimal, bool)
}

// MarketDataClient fetches historical windows used to seed indicator state
type MarketDataClient interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// Ensure implementations satisfy the interfaces
var (
	_ OrderExecutor    = (*Client)(nil)
	_ OrderExecutor    = (*PaperExecutor)(nil)
	_ MarketDataClient = (*Client)(nil)
	_ SymbolRules      = (*RulesCache)(nil)
)
