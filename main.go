package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"binance-signal-engine/config"
	"binance-signal-engine/internal/api"
	"binance-signal-engine/internal/auth"
	"binance-signal-engine/internal/autopilot"
	"binance-signal-engine/internal/binance"
	"binance-signal-engine/internal/database"
	"binance-signal-engine/internal/events"
	"binance-signal-engine/internal/logging"
	"binance-signal-engine/internal/state"
	"binance-signal-engine/internal/strategy"
	"binance-signal-engine/internal/vault"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML or JSON config file")
	flag.Parse()

	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LoggingConfig)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Engine exited with error")
	}
	logger.Info().Msg("Engine stopped")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	settings := cfg.TradingConfig
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid trading settings: %w", err)
	}

	logger.Info().
		Str("mode", string(settings.TradingMode)).
		Strs("symbols", settings.Symbols).
		Float64("initial_balance", settings.InitialBalance).
		Msg("Starting signal engine")

	bus := events.NewEventBus()
	st := state.New(settings)
	st.Cooldown().OnTrip(func(symbol string, until time.Time) {
		bus.PublishLog("WARN", symbol, "loss cooldown until "+until.Format(time.RFC3339))
	})

	creds, err := loadCredentials(ctx, cfg, logger)
	if err != nil {
		return err
	}
	client := binance.NewClient(creds.APIKey, creds.SecretKey, cfg.BinanceConfig.BaseURL, cfg.BinanceConfig.RequestsPerSec)

	var executor binance.OrderExecutor
	switch settings.TradingMode {
	case config.ModeLive:
		if !client.HasCredentials() {
			return errors.New("live trading requires exchange credentials")
		}
		executor = client
	default:
		executor = binance.NewPaperExecutor(st)
	}

	rules := binance.NewRulesCache(client)
	if err := rules.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("Exchange rules unavailable, using default quantity precision")
	}

	windows := strategy.NewWindowSet(strategy.DefaultWindowCapacity)
	ctrl := autopilot.NewController(st, windows, executor, rules, bus, logger)

	store, closeStore := openStateStore(ctx, cfg, logger)
	defer closeStore()
	ctrl.SetStore(store)
	if err := ctrl.Restore(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to restore persisted state, starting fresh")
	}

	var ledger *database.DB
	if cfg.DatabaseConfig.Enabled {
		ledger, err = openLedger(ctx, cfg, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Trade ledger unavailable, continuing without it")
		} else {
			defer ledger.Close()
			ctrl.SetRecorder(ledger)
		}
	}

	symbols := ctrl.State().Settings().Symbols
	stream := binance.NewKlineStream(cfg.BinanceConfig.StreamURL, symbols, binance.AllTimeframes, ctrl, logger)
	seedWindows(ctx, client, windows, stream, symbols, cfg.BinanceConfig.WarmupCandles, logger)

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		authSvc, err := openAuth(ctx, cfg, store)
		if err != nil {
			return err
		}
		metricsPath := ""
		if cfg.MetricsConfig.Enabled {
			metricsPath = cfg.MetricsConfig.Path
		}
		server = api.NewServer(api.ServerConfig{
			Host:           cfg.ServerConfig.Host,
			Port:           cfg.ServerConfig.Port,
			AllowedOrigins: splitOrigins(cfg.ServerConfig.AllowedOrigins),
			MetricsPath:    metricsPath,
			RequestsPerSec: 20,
			Burst:          40,
			ProductionMode: settings.TradingMode == config.ModeLive,
		}, ctrl, bus, authSvc, logger)
		if ledger != nil {
			server.SetLedger(ledger)
		}
		server.SetStream(stream)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ctrl.Run(gctx) })
	g.Go(func() error { return stream.Run(gctx) })
	g.Go(func() error { return refreshRules(gctx, rules, cfg.BinanceConfig.RulesRefreshMin, logger) })

	if server != nil {
		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx),
				time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loadCredentials prefers Vault and falls back to the environment
func loadCredentials(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (vault.Credentials, error) {
	envCreds := vault.Credentials{
		APIKey:    cfg.BinanceConfig.APIKey,
		SecretKey: cfg.BinanceConfig.SecretKey,
		IsTestnet: cfg.BinanceConfig.TestNet,
	}
	if !cfg.VaultConfig.Enabled {
		return envCreds, nil
	}

	vc, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		return vault.Credentials{}, fmt.Errorf("vault client: %w", err)
	}
	if err := vc.Health(ctx); err != nil {
		logger.Warn().Err(err).Msg("Vault unhealthy, using environment credentials")
		return envCreds, nil
	}

	creds, err := vc.LoadCredentials(ctx)
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) && envCreds.Valid() {
			if serr := vc.StoreCredentials(ctx, envCreds); serr != nil {
				logger.Warn().Err(serr).Msg("Failed to store environment credentials in Vault")
			}
			return envCreds, nil
		}
		logger.Warn().Err(err).Msg("Vault credentials unavailable, using environment credentials")
		return envCreds, nil
	}

	logger.Info().Bool("testnet", creds.IsTestnet).Msg("Exchange credentials loaded from Vault")
	return *creds, nil
}

// openStateStore returns a Redis-backed store, or a memory-only one when
// Redis is disabled or unreachable
func openStateStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*database.RedisStateStore, func()) {
	if !cfg.RedisConfig.Enabled {
		return database.NewRedisStateStore(nil, logger), func() {}
	}

	client, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisConfig.Host,
		Port:     cfg.RedisConfig.Port,
		Password: cfg.RedisConfig.Password,
		DB:       cfg.RedisConfig.DB,
		PoolSize: cfg.RedisConfig.PoolSize,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, state will not survive restarts")
		return database.NewRedisStateStore(nil, logger), func() {}
	}

	logger.Info().Str("host", cfg.RedisConfig.Host).Int("port", cfg.RedisConfig.Port).Msg("Redis connected")
	return database.NewRedisStateStore(client, logger), func() { _ = client.Close() }
}

func openLedger(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(ctx, database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openAuth(ctx context.Context, cfg *config.Config, store state.Store) (*auth.Service, error) {
	if !cfg.AuthConfig.Enabled {
		return nil, nil
	}
	if cfg.AuthConfig.JWTSecret == "" {
		return nil, errors.New("auth enabled without AUTH_JWT_SECRET")
	}

	authCfg := auth.DefaultConfig()
	authCfg.JWTSecret = cfg.AuthConfig.JWTSecret
	authCfg.AdminPasswordHash = cfg.AuthConfig.AdminPasswordHash
	if cfg.AuthConfig.AccessTokenDuration > 0 {
		authCfg.AccessTokenDuration = cfg.AuthConfig.AccessTokenDuration
	}

	svc := auth.NewService(store, authCfg)
	if err := svc.Init(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

// seedWindows loads REST history so indicators are warm before the first
// streamed candle, and marks the seeded candles as delivered
func seedWindows(ctx context.Context, client binance.MarketDataClient, windows *strategy.WindowSet, stream *binance.KlineStream, symbols []string, limit int, logger zerolog.Logger) {
	if limit <= 0 {
		return
	}
	for _, symbol := range symbols {
		for _, tf := range binance.AllTimeframes {
			klines, err := client.GetKlines(ctx, symbol, string(tf), limit)
			if err != nil {
				logger.Warn().Err(err).Str("symbol", symbol).Str("timeframe", string(tf)).Msg("Warmup fetch failed")
				continue
			}
			// the newest REST candle may still be open
			if n := len(klines); n > 0 && time.UnixMilli(klines[n-1].CloseTime).After(time.Now()) {
				klines = klines[:n-1]
			}
			accepted := windows.Seed(symbol, tf, klines)
			if n := len(klines); n > 0 {
				stream.MarkDelivered(symbol, tf, klines[n-1].OpenTime)
			}
			logger.Debug().Str("symbol", symbol).Str("timeframe", string(tf)).Int("candles", accepted).Msg("Window seeded")
		}
	}
}

func refreshRules(ctx context.Context, rules *binance.RulesCache, everyMin int, logger zerolog.Logger) error {
	if everyMin <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(time.Duration(everyMin) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := rules.Refresh(ctx); err != nil {
				logger.Warn().Err(err).Msg("Exchange rules refresh failed")
			}
		}
	}
}

func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
