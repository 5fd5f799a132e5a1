package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"binance-signal-engine/internal/autopilot"
	"binance-signal-engine/internal/strategy"

	"github.com/gin-gonic/gin"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 500
)

// closeRequest is the optional body of a manual close
type closeRequest struct {
	Price float64 `json:"price"`
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{
		"status":     "ok",
		"time":       time.Now().UTC(),
		"ws_clients": s.hub.GetClientCount(),
	}
	if s.stream != nil {
		resp["stream"] = s.stream.GetStats()
	}
	c.JSON(http.StatusOK, resp)
}

// statePayload is the dashboard view of the engine
func (s *Server) statePayload() gin.H {
	st := s.controller.State()
	settings := st.Settings()
	return gin.H{
		"paused":                settings.Paused,
		"trading_mode":          settings.TradingMode,
		"stats":                 st.Stats(),
		"active_positions":      st.ActivePositions(),
		"pending_confirmations": st.Confirmations().Entries(),
		"cooldowns":             st.Cooldown().Snapshot(),
		"cooldown_stats":        st.Cooldown().GetStats(time.Now()),
		"prices":                st.Prices(),
	}
}

func (s *Server) handleGetState(c *gin.Context) {
	c.JSON(http.StatusOK, s.statePayload())
}

func (s *Server) handleGetPositions(c *gin.Context) {
	st := s.controller.State()
	positions := st.ActivePositions()

	out := make([]gin.H, 0, len(positions))
	for _, p := range positions {
		row := gin.H{"position": p}
		if price, ok := st.LastPrice(p.Symbol); ok {
			row["last_price"] = price
			row["unrealized_pnl"] = p.UnrealizedPnL(price)
			row["r_multiple"] = p.RMultiple(price)
		}
		out = append(out, row)
	}
	c.JSON(http.StatusOK, gin.H{"positions": out})
}

func (s *Server) handleClosePosition(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid position id"})
		return
	}

	var req closeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Price < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price must not be negative"})
		return
	}

	closed, err := s.controller.ManualClose(c.Request.Context(), id, req.Price)
	if err != nil {
		if errors.Is(err, autopilot.ErrPositionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error().Err(err).Int64("position_id", id).Msg("Manual close failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to close position"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"position": closed})
}

func (s *Server) handleGetTrades(c *gin.Context) {
	limit := defaultTradeLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if limit > maxTradeLimit {
		limit = maxTradeLimit
	}

	if c.Query("source") == "ledger" {
		if s.ledger == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade ledger not configured"})
			return
		}
		trades, err := s.ledger.GetRecentTrades(c.Request.Context(), limit)
		if err != nil {
			s.logger.Error().Err(err).Msg("Ledger query failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trades"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"trades": trades, "source": "ledger"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trades": s.controller.State().TradeHistory(limit),
		"source": "memory",
	})
}

func (s *Server) handleGetSignals(c *gin.Context) {
	signals := s.controller.LastSignals()

	out := make([]strategy.Signal, 0, len(signals))
	for _, sig := range signals {
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier > out[j].Tier
		}
		return out[i].Symbol < out[j].Symbol
	})

	c.JSON(http.StatusOK, gin.H{"signals": out})
}

func (s *Server) handleGetConfirmations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pending": s.controller.State().Confirmations().Entries()})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.State().Settings())
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	// start from the live settings so omitted fields keep their values
	settings := s.controller.State().Settings()
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.controller.UpdateSettings(c.Request.Context(), settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.logger.Info().Bool("paused", settings.Paused).Msg("Settings updated via API")
	c.JSON(http.StatusOK, s.controller.State().Settings())
}

func (s *Server) handlePause(c *gin.Context) {
	s.controller.Pause()
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (s *Server) handleResume(c *gin.Context) {
	s.controller.Resume()
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

func (s *Server) handleResetCooldown(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	if !s.controller.ResetCooldown(c.Request.Context(), symbol) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active cooldown for " + symbol})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "reset": true})
}
