package database

import (
	"context"
	"fmt"
	"time"

	"binance-signal-engine/internal/logging"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN builds the libpq connection string
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, cfg Config, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	db := &DB{Pool: pool, logger: logging.Component(logger, "database")}
	db.logger.Info().Str("database", cfg.Database).Msg("Connected to PostgreSQL")
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("Database connection closed")
	}
}

// migrations creates the trade ledger schema. Statements are idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS trades (
		id BIGINT PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		strategy VARCHAR(20) NOT NULL,
		profile VARCHAR(30) NOT NULL,
		tier INTEGER NOT NULL DEFAULT 0,
		entry_price DECIMAL(20, 8) NOT NULL,
		quantity DECIMAL(20, 8) NOT NULL,
		total_cost DECIMAL(20, 8) NOT NULL,
		stop_loss DECIMAL(20, 8),
		take_profit DECIMAL(20, 8),
		initial_stop_loss DECIMAL(20, 8),
		entry_time TIMESTAMPTZ NOT NULL,
		entry_order_id VARCHAR(64),
		exit_price DECIMAL(20, 8),
		exit_time TIMESTAMPTZ,
		exit_reason VARCHAR(20),
		realized_partial_pnl DECIMAL(20, 8) DEFAULT 0,
		pnl DECIMAL(20, 8),
		pnl_percent DECIMAL(10, 4),
		status VARCHAR(10) NOT NULL DEFAULT 'FILLED',
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_entry_time ON trades(entry_time)`,
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Int("statements", len(migrations)).Msg("Running database migrations")

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Msg("Database migrations completed")
	return nil
}
