package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"binance-signal-engine/internal/auth"
	"binance-signal-engine/internal/autopilot"
	"binance-signal-engine/internal/database"
	"binance-signal-engine/internal/events"
	"binance-signal-engine/internal/logging"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	MetricsPath    string // empty disables /metrics
	RequestsPerSec float64
	Burst          int
	ProductionMode bool
}

// TradeLister serves the durable trade ledger when one is configured
type TradeLister interface {
	GetRecentTrades(ctx context.Context, limit int) ([]database.TradeRecord, error)
}

// StatsSource reports connection statistics for /health
type StatsSource interface {
	GetStats() map[string]interface{}
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	controller *autopilot.Controller
	authSvc    *auth.Service
	hub        *WSHub
	upgrader   websocket.Upgrader
	config     ServerConfig
	logger     zerolog.Logger
	limiter    *clientLimiter
	ledger     TradeLister
	stream     StatsSource
}

// NewServer creates a new API server. authSvc may be nil, in which case
// the API is unauthenticated.
func NewServer(
	config ServerConfig,
	controller *autopilot.Controller,
	bus *events.EventBus,
	authSvc *auth.Service,
	logger zerolog.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	logger = logging.Component(logger, "api")

	s := &Server{
		router:     router,
		controller: controller,
		authSvc:    authSvc,
		hub:        NewWSHub(logger),
		upgrader:   newUpgrader(config.AllowedOrigins),
		config:     config,
		logger:     logger,
		limiter:    newClientLimiter(config.RequestsPerSec, config.Burst),
	}

	router.Use(gin.Recovery())
	router.Use(s.requestLogger())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) == 0 || (len(config.AllowedOrigins) == 1 && config.AllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = config.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	bus.SubscribeAll(s.hub.BroadcastEvent)

	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetLedger enables GET /api/trades?source=ledger
func (s *Server) SetLedger(ledger TradeLister) {
	s.ledger = ledger
}

// SetStream adds market stream statistics to /health
func (s *Server) SetStream(stream StatsSource) {
	s.stream = stream
}

// Router exposes the gin engine for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.config.MetricsPath != "" {
		s.router.GET(s.config.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	api := s.router.Group("/api")
	api.Use(s.rateLimit())

	if s.authSvc != nil {
		auth.NewHandlers(s.authSvc).RegisterRoutes(api)
		api.Use(auth.Middleware(s.authSvc))
	}

	api.GET("/state", s.handleGetState)
	api.GET("/positions", s.handleGetPositions)
	api.POST("/positions/:id/close", s.handleClosePosition)
	api.GET("/trades", s.handleGetTrades)
	api.GET("/signals", s.handleGetSignals)
	api.GET("/confirmations", s.handleGetConfirmations)
	api.GET("/settings", s.handleGetSettings)
	api.PUT("/settings", s.handleUpdateSettings)
	api.POST("/pause", s.handlePause)
	api.POST("/resume", s.handleResume)
	api.POST("/cooldowns/:symbol/reset", s.handleResetCooldown)
	api.GET("/ws", s.handleWebSocket)
}

// Start serves until Shutdown. http.ErrServerClosed is not an error.
func (s *Server) Start() error {
	go s.hub.Run()

	s.logger.Info().Str("addr", s.httpServer.Addr).Bool("auth", s.authSvc != nil).Msg("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and closes websocket clients
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if path == "/health" || path == s.config.MetricsPath {
			return
		}
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// clientLimiter keeps one token bucket per client IP
type clientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newClientLimiter(perSec float64, burst int) *clientLimiter {
	if perSec <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(perSec) + 1
	}
	return &clientLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSec),
		burst:    burst,
	}
}

func (l *clientLimiter) allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || strings.HasSuffix(c.Request.URL.Path, "/ws") {
			c.Next()
			return
		}
		if !s.limiter.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
