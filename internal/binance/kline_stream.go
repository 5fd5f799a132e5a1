package binance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"binance-signal-engine/internal/metrics"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// KlineTimeframe represents a supported kline interval
type KlineTimeframe string

const (
	Timeframe1m  KlineTimeframe = "1m"
	Timeframe5m  KlineTimeframe = "5m"
	Timeframe15m KlineTimeframe = "15m"
	Timeframe1h  KlineTimeframe = "1h"
	Timeframe4h  KlineTimeframe = "4h"
)

// AllTimeframes lists every timeframe the engine aggregates
var AllTimeframes = []KlineTimeframe{Timeframe1m, Timeframe5m, Timeframe15m, Timeframe1h, Timeframe4h}

// Duration returns the candle length
func (tf KlineTimeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1m:
		return time.Minute
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	}
	return 0
}

// StreamHandler receives market data from the stream. Calls for one
// connection are made sequentially from the read loop.
type StreamHandler interface {
	OnPriceTick(ctx context.Context, symbol string, price float64, at time.Time)
	OnCandleClosed(ctx context.Context, symbol string, tf KlineTimeframe, k Kline)
}

// KlineStream subscribes to combined kline streams and reconnects on loss.
// Closed candles are delivered at most once and in increasing open-time
// order per (symbol, timeframe).
type KlineStream struct {
	baseURL    string
	symbols    []string
	timeframes []KlineTimeframe
	handler    StreamHandler
	logger     zerolog.Logger

	mu         sync.Mutex
	lastOpen   map[string]int64
	reconnects int
}

// NewKlineStream creates a stream for symbols x timeframes
func NewKlineStream(baseURL string, symbols []string, timeframes []KlineTimeframe, handler StreamHandler, logger zerolog.Logger) *KlineStream {
	return &KlineStream{
		baseURL:    strings.TrimRight(baseURL, "/"),
		symbols:    symbols,
		timeframes: timeframes,
		handler:    handler,
		logger:     logger.With().Str("component", "kline-stream").Logger(),
		lastOpen:   make(map[string]int64),
	}
}

// URL returns the combined stream endpoint
func (s *KlineStream) URL() string {
	streams := make([]string, 0, len(s.symbols)*len(s.timeframes))
	for _, sym := range s.symbols {
		for _, tf := range s.timeframes {
			streams = append(streams, fmt.Sprintf("%s@kline_%s", strings.ToLower(sym), tf))
		}
	}
	return s.baseURL + "/stream?streams=" + strings.Join(streams, "/")
}

// MarkDelivered records openTime as already delivered for (symbol, tf),
// used after seeding windows from REST history.
func (s *KlineStream) MarkDelivered(symbol string, tf KlineTimeframe, openTime int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := symbol + "|" + string(tf)
	if openTime > s.lastOpen[key] {
		s.lastOpen[key] = openTime
	}
}

// Run connects and reads until ctx is cancelled
func (s *KlineStream) Run(ctx context.Context) error {
	wsURL := s.URL()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Info().Int("streams", len(s.symbols)*len(s.timeframes)).Msg("Connecting to kline stream")

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			s.mu.Lock()
			s.reconnects++
			s.mu.Unlock()
			metrics.StreamReconnects.Inc()
			s.logger.Warn().Err(err).Msg("Connection failed, retrying in 3s")
			if !sleepCtx(ctx, 3*time.Second) {
				return ctx.Err()
			}
			continue
		}

		s.mu.Lock()
		s.reconnects = 0
		s.mu.Unlock()
		s.logger.Info().Msg("Kline stream connected")

		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-done:
			}
		}()

		s.readLoop(ctx, conn)
		close(done)
		conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		metrics.StreamReconnects.Inc()
		s.logger.Warn().Msg("Connection lost, reconnecting in 3s")
		if !sleepCtx(ctx, 3*time.Second) {
			return ctx.Err()
		}
	}
}

func (s *KlineStream) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info().Msg("Connection closed normally")
			} else if ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("Read error")
			}
			return
		}

		s.handleMessage(ctx, message)
	}
}

type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   klineEventFrame `json:"data"`
}

type klineEventFrame struct {
	EventType string       `json:"e"`
	EventTime int64        `json:"E"`
	Symbol    string       `json:"s"`
	Kline     klinePayload `json:"k"`
}

type klinePayload struct {
	OpenTime       int64   `json:"t"`
	CloseTime      int64   `json:"T"`
	Interval       string  `json:"i"`
	Open           float64 `json:"o,string"`
	Close          float64 `json:"c,string"`
	High           float64 `json:"h,string"`
	Low            float64 `json:"l,string"`
	Volume         float64 `json:"v,string"`
	Trades         int     `json:"n"`
	IsClosed       bool    `json:"x"`
	QuoteVolume    float64 `json:"q,string"`
	TakerBuyVolume float64 `json:"V,string"`
	TakerBuyQuote  float64 `json:"Q,string"`
}

func (s *KlineStream) handleMessage(ctx context.Context, message []byte) {
	var env streamEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		s.logger.Debug().Err(err).Msg("Ignoring malformed stream message")
		return
	}
	if env.Data.EventType != "kline" || env.Data.Symbol == "" {
		return
	}

	p := env.Data.Kline
	s.handler.OnPriceTick(ctx, env.Data.Symbol, p.Close, time.UnixMilli(env.Data.EventTime))

	if !p.IsClosed {
		return
	}

	tf := KlineTimeframe(p.Interval)
	key := env.Data.Symbol + "|" + p.Interval

	s.mu.Lock()
	if p.OpenTime <= s.lastOpen[key] {
		s.mu.Unlock()
		return
	}
	s.lastOpen[key] = p.OpenTime
	s.mu.Unlock()

	s.handler.OnCandleClosed(ctx, env.Data.Symbol, tf, Kline{
		OpenTime:                 p.OpenTime,
		Open:                     p.Open,
		High:                     p.High,
		Low:                      p.Low,
		Close:                    p.Close,
		Volume:                   p.Volume,
		CloseTime:                p.CloseTime,
		QuoteAssetVolume:         p.QuoteVolume,
		NumberOfTrades:           p.Trades,
		TakerBuyBaseAssetVolume:  p.TakerBuyVolume,
		TakerBuyQuoteAssetVolume: p.TakerBuyQuote,
	})
}

// GetStats returns connection statistics
func (s *KlineStream) GetStats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]interface{}{
		"streams":    len(s.symbols) * len(s.timeframes),
		"reconnects": s.reconnects,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
