package strategy

import (
	"sync"

	"binance-signal-engine/internal/binance"
)

// DefaultWindowCapacity is the number of closed candles kept per (symbol, timeframe)
const DefaultWindowCapacity = 200

// CandleWindow is a fixed-capacity FIFO of closed candles, oldest first
type CandleWindow struct {
	capacity int
	klines   []binance.Kline
}

// NewCandleWindow creates an empty window
func NewCandleWindow(capacity int) *CandleWindow {
	if capacity <= 0 {
		capacity = DefaultWindowCapacity
	}
	return &CandleWindow{
		capacity: capacity,
		klines:   make([]binance.Kline, 0, capacity),
	}
}

// Push appends k, evicting the oldest candle on overflow. Candles that do
// not advance the open time are ignored.
func (w *CandleWindow) Push(k binance.Kline) bool {
	if n := len(w.klines); n > 0 && k.OpenTime <= w.klines[n-1].OpenTime {
		return false
	}
	if len(w.klines) == w.capacity {
		copy(w.klines, w.klines[1:])
		w.klines = w.klines[:w.capacity-1]
	}
	w.klines = append(w.klines, k)
	return true
}

// Len returns the number of candles held
func (w *CandleWindow) Len() int {
	return len(w.klines)
}

// Klines returns a copy of the window
func (w *CandleWindow) Klines() []binance.Kline {
	out := make([]binance.Kline, len(w.klines))
	copy(out, w.klines)
	return out
}

// Last returns the most recent candle
func (w *CandleWindow) Last() (binance.Kline, bool) {
	if len(w.klines) == 0 {
		return binance.Kline{}, false
	}
	return w.klines[len(w.klines)-1], true
}

// WindowSet owns every candle window the engine tracks
type WindowSet struct {
	mu       sync.RWMutex
	capacity int
	windows  map[string]map[binance.KlineTimeframe]*CandleWindow
}

// NewWindowSet creates an empty set
func NewWindowSet(capacity int) *WindowSet {
	return &WindowSet{
		capacity: capacity,
		windows:  make(map[string]map[binance.KlineTimeframe]*CandleWindow),
	}
}

func (ws *WindowSet) window(symbol string, tf binance.KlineTimeframe) *CandleWindow {
	bySymbol, ok := ws.windows[symbol]
	if !ok {
		bySymbol = make(map[binance.KlineTimeframe]*CandleWindow)
		ws.windows[symbol] = bySymbol
	}
	w, ok := bySymbol[tf]
	if !ok {
		w = NewCandleWindow(ws.capacity)
		bySymbol[tf] = w
	}
	return w
}

// Push adds a closed candle and reports whether it was accepted
func (ws *WindowSet) Push(symbol string, tf binance.KlineTimeframe, k binance.Kline) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.window(symbol, tf).Push(k)
}

// Seed loads historical candles, oldest first
func (ws *WindowSet) Seed(symbol string, tf binance.KlineTimeframe, klines []binance.Kline) int {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	w := ws.window(symbol, tf)
	accepted := 0
	for _, k := range klines {
		if w.Push(k) {
			accepted++
		}
	}
	return accepted
}

// Klines returns a copy of one window
func (ws *WindowSet) Klines(symbol string, tf binance.KlineTimeframe) []binance.Kline {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	if bySymbol, ok := ws.windows[symbol]; ok {
		if w, ok := bySymbol[tf]; ok {
			return w.Klines()
		}
	}
	return nil
}

// Snapshot aggregates every timeframe for symbol at price
func (ws *WindowSet) Snapshot(symbol string, price float64) *Snapshot {
	return BuildSnapshot(symbol, price, map[binance.KlineTimeframe][]binance.Kline{
		binance.Timeframe4h:  ws.Klines(symbol, binance.Timeframe4h),
		binance.Timeframe1h:  ws.Klines(symbol, binance.Timeframe1h),
		binance.Timeframe15m: ws.Klines(symbol, binance.Timeframe15m),
		binance.Timeframe5m:  ws.Klines(symbol, binance.Timeframe5m),
		binance.Timeframe1m:  ws.Klines(symbol, binance.Timeframe1m),
	})
}
