package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	BinanceConfig  BinanceConfig   `json:"binance" yaml:"binance"`
	TradingConfig  TradingSettings `json:"trading" yaml:"trading"`
	ServerConfig   ServerConfig    `json:"server" yaml:"server"`
	AuthConfig     AuthConfig      `json:"auth" yaml:"auth"`
	VaultConfig    VaultConfig     `json:"vault" yaml:"vault"`
	RedisConfig    RedisConfig     `json:"redis" yaml:"redis"`
	DatabaseConfig DatabaseConfig  `json:"database" yaml:"database"`
	LoggingConfig  LoggingConfig   `json:"logging" yaml:"logging"`
	MetricsConfig  MetricsConfig   `json:"metrics" yaml:"metrics"`
}

type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`             // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output" yaml:"output"`           // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format" yaml:"json_format"` // Output as JSON
}

type BinanceConfig struct {
	APIKey          string  `json:"api_key" yaml:"api_key"`
	SecretKey       string  `json:"secret_key" yaml:"secret_key"`
	BaseURL         string  `json:"base_url" yaml:"base_url"`
	StreamURL       string  `json:"stream_url" yaml:"stream_url"`
	TestNet         bool    `json:"testnet" yaml:"testnet"`
	RequestsPerSec  float64 `json:"requests_per_sec" yaml:"requests_per_sec"`
	WarmupCandles   int     `json:"warmup_candles" yaml:"warmup_candles"`
	RulesRefreshMin int     `json:"rules_refresh_min" yaml:"rules_refresh_min"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Enabled         bool   `json:"enabled" yaml:"enabled"`
	Host            string `json:"host" yaml:"host"`
	Port            int    `json:"port" yaml:"port"`
	AllowedOrigins  string `json:"allowed_origins" yaml:"allowed_origins"`
	ShutdownTimeout int    `json:"shutdown_timeout" yaml:"shutdown_timeout"` // seconds
}

// AuthConfig holds API authentication settings
type AuthConfig struct {
	Enabled             bool          `json:"enabled" yaml:"enabled"`
	JWTSecret           string        `json:"jwt_secret" yaml:"jwt_secret"`
	AdminPasswordHash   string        `json:"admin_password_hash" yaml:"admin_password_hash"` // bcrypt
	AccessTokenDuration time.Duration `json:"access_token_duration" yaml:"access_token_duration"`
}

// VaultConfig holds HashiCorp Vault settings for exchange credentials
type VaultConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Address    string `json:"address" yaml:"address"`
	Token      string `json:"token" yaml:"token"`
	MountPath  string `json:"mount_path" yaml:"mount_path"`
	SecretPath string `json:"secret_path" yaml:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled" yaml:"tls_enabled"`
	CACert     string `json:"ca_cert" yaml:"ca_cert"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	PoolSize int    `json:"pool_size" yaml:"pool_size"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`
	SSLMode  string `json:"ssl_mode" yaml:"ssl_mode"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// Default returns a configuration with every section populated.
func Default() *Config {
	return &Config{
		BinanceConfig: BinanceConfig{
			BaseURL:         "https://api.binance.com",
			StreamURL:       "wss://stream.binance.com:9443",
			RequestsPerSec:  10,
			WarmupCandles:   200,
			RulesRefreshMin: 60,
		},
		TradingConfig: DefaultTradingSettings(),
		ServerConfig: ServerConfig{
			Enabled:         true,
			Host:            "0.0.0.0",
			Port:            8080,
			AllowedOrigins:  "*",
			ShutdownTimeout: 10,
		},
		AuthConfig: AuthConfig{
			AccessTokenDuration: 12 * time.Hour,
		},
		VaultConfig: VaultConfig{
			Address:    "http://localhost:8200",
			MountPath:  "secret",
			SecretPath: "signal-engine/binance",
		},
		RedisConfig: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			PoolSize: 10,
		},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "engine",
			Database: "signal_engine",
			SSLMode:  "disable",
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		MetricsConfig: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads the config file at path (YAML or JSON by extension) on top of
// defaults and then applies environment overrides. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	// Environment variables take precedence
	applyEnvOverrides(cfg)

	if err := cfg.TradingConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trading settings: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Binance
	cfg.BinanceConfig.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.BinanceConfig.APIKey)
	cfg.BinanceConfig.SecretKey = getEnvOrDefault("BINANCE_SECRET_KEY", cfg.BinanceConfig.SecretKey)
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.BinanceConfig.BaseURL)
	cfg.BinanceConfig.StreamURL = getEnvOrDefault("BINANCE_STREAM_URL", cfg.BinanceConfig.StreamURL)
	cfg.BinanceConfig.TestNet = getEnvBoolOrDefault("BINANCE_TESTNET", cfg.BinanceConfig.TestNet)
	cfg.BinanceConfig.RequestsPerSec = getEnvFloatOrDefault("BINANCE_REQUESTS_PER_SEC", cfg.BinanceConfig.RequestsPerSec)

	// Trading
	t := &cfg.TradingConfig
	t.TradingMode = TradingMode(getEnvOrDefault("TRADING_MODE", string(t.TradingMode)))
	if symbols := os.Getenv("TRADING_SYMBOLS"); symbols != "" {
		t.Symbols = splitSymbols(symbols)
	}
	t.InitialBalance = getEnvFloatOrDefault("INITIAL_BALANCE", t.InitialBalance)
	t.MaxOpenPositions = getEnvIntOrDefault("MAX_OPEN_POSITIONS", t.MaxOpenPositions)
	t.PositionSizePct = getEnvFloatOrDefault("POSITION_SIZE_PCT", t.PositionSizePct)
	t.DynamicSizing = getEnvBoolOrDefault("DYNAMIC_SIZING", t.DynamicSizing)
	t.StrongBuyPositionSizePct = getEnvFloatOrDefault("STRONG_BUY_POSITION_SIZE_PCT", t.StrongBuyPositionSizePct)
	t.LossCooldownHours = getEnvFloatOrDefault("LOSS_COOLDOWN_HOURS", t.LossCooldownHours)
	t.RequireMTFConfirmation = getEnvBoolOrDefault("REQUIRE_MTF_CONFIRMATION", t.RequireMTFConfirmation)
	t.ConfirmationMaxCandles = getEnvIntOrDefault("CONFIRMATION_MAX_CANDLES", t.ConfirmationMaxCandles)
	t.AdaptiveProfiles = getEnvBoolOrDefault("ADAPTIVE_PROFILES", t.AdaptiveProfiles)
	t.IgnitionTrailingEnabled = getEnvBoolOrDefault("IGNITION_TRAILING_ENABLED", t.IgnitionTrailingEnabled)
	t.IgnitionPriceSpikePct = getEnvFloatOrDefault("IGNITION_PRICE_SPIKE_PCT", t.IgnitionPriceSpikePct)
	t.IgnitionVolumeMultiplier = getEnvFloatOrDefault("IGNITION_VOLUME_MULTIPLIER", t.IgnitionVolumeMultiplier)

	// Server
	cfg.ServerConfig.Enabled = getEnvBoolOrDefault("WEB_ENABLED", cfg.ServerConfig.Enabled)
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", cfg.ServerConfig.ShutdownTimeout)

	// Auth
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AdminPasswordHash = getEnvOrDefault("AUTH_ADMIN_PASSWORD_HASH", cfg.AuthConfig.AdminPasswordHash)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", cfg.AuthConfig.AccessTokenDuration)

	// Vault
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)
	cfg.VaultConfig.TLSEnabled = getEnvBoolOrDefault("VAULT_TLS_ENABLED", cfg.VaultConfig.TLSEnabled)
	cfg.VaultConfig.CACert = getEnvOrDefault("VAULT_CACERT", cfg.VaultConfig.CACert)

	// Redis
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Host = getEnvOrDefault("REDIS_HOST", cfg.RedisConfig.Host)
	cfg.RedisConfig.Port = getEnvIntOrDefault("REDIS_PORT", cfg.RedisConfig.Port)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	// Database
	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DB_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)

	// Metrics
	cfg.MetricsConfig.Enabled = getEnvBoolOrDefault("METRICS_ENABLED", cfg.MetricsConfig.Enabled)
}

func loadFromFile(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", filename, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", filename, err)
		}
	}

	return nil
}

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			symbols = append(symbols, p)
		}
	}
	return symbols
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
