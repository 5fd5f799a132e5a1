package risk

import (
	"math"

	"binance-signal-engine/internal/binance"

	"github.com/shopspring/decimal"
)

// DefaultQuantityDecimals is used when a symbol has no LOT_SIZE rule
const DefaultQuantityDecimals = 8

// QuantityFormatter renders order quantities to the symbol's lot step
type QuantityFormatter struct {
	rules binance.SymbolRules
}

// NewQuantityFormatter creates a formatter over rules; nil rules formats
// every symbol with the default precision.
func NewQuantityFormatter(rules binance.SymbolRules) *QuantityFormatter {
	return &QuantityFormatter{rules: rules}
}

// Format returns the order quantity string for symbol and its float value
func (f *QuantityFormatter) Format(symbol string, qty float64) (string, float64) {
	var (
		step  decimal.Decimal
		known bool
	)
	if f != nil && f.rules != nil {
		step, known = f.rules.StepSize(symbol)
	}
	d := FormatQuantity(qty, step, known)
	return d.String(), d.InexactFloat64()
}

// FormatQuantity applies the lot step to qty. Without a rule it rounds to
// eight decimals; with one it truncates so the result never exceeds qty.
func FormatQuantity(qty float64, step decimal.Decimal, known bool) decimal.Decimal {
	d := decimal.NewFromFloat(qty)

	if !known || !step.IsPositive() {
		return d.Round(DefaultQuantityDecimals)
	}
	if step.Equal(decimal.NewFromInt(1)) {
		return d.Truncate(0)
	}
	return d.Truncate(StepPrecision(step))
}

// StepPrecision returns max(0, -log10(step)) decimal places
func StepPrecision(step decimal.Decimal) int32 {
	p := -math.Log10(step.InexactFloat64())
	if p <= 0 {
		return 0
	}
	return int32(math.Round(p))
}
