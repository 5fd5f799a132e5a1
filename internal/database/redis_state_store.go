package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"binance-signal-engine/internal/logging"
	"binance-signal-engine/internal/state"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StateKeyPrefix namespaces persisted documents: engine:{kind}
const StateKeyPrefix = "engine"

// RedisConfig holds the Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// NewRedisClient connects to Redis and pings it once
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return client, nil
}

// RedisStateStore persists engine documents in Redis. Every write also lands
// in an in-memory copy, which serves reads while Redis is unavailable or
// when no client is configured.
type RedisStateStore struct {
	client         *redis.Client
	logger         zerolog.Logger
	redisAvailable atomic.Bool

	mu    sync.RWMutex
	cache map[state.Kind][]byte
}

var _ state.Store = (*RedisStateStore)(nil)

// NewRedisStateStore creates a store over client. A nil client runs in
// memory-only mode.
func NewRedisStateStore(client *redis.Client, logger zerolog.Logger) *RedisStateStore {
	s := &RedisStateStore{
		client: client,
		logger: logging.Component(logger, "state-store"),
		cache:  make(map[state.Kind][]byte),
	}
	if client == nil {
		s.logger.Info().Msg("No Redis client provided, using in-memory store only")
		return s
	}
	s.redisAvailable.Store(true)
	return s
}

// IsRedisAvailable reports whether writes currently reach Redis
func (s *RedisStateStore) IsRedisAvailable() bool {
	return s.client != nil && s.redisAvailable.Load()
}

func stateKey(kind state.Kind) string {
	return fmt.Sprintf("%s:%s", StateKeyPrefix, kind)
}

// Save marshals v and stores it under kind
func (s *RedisStateStore) Save(ctx context.Context, kind state.Kind, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}

	s.mu.Lock()
	s.cache[kind] = data
	s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	if err := s.client.Set(ctx, stateKey(kind), data, 0).Err(); err != nil {
		if s.redisAvailable.Swap(false) {
			s.logger.Warn().Err(err).Str("kind", string(kind)).Msg("Redis write failed, keeping in-memory copy")
		}
		return nil
	}
	if !s.redisAvailable.Swap(true) {
		s.logger.Info().Msg("Redis writes recovered")
	}
	return nil
}

// Load reads kind into v. ErrNoSnapshot is returned when nothing was saved.
func (s *RedisStateStore) Load(ctx context.Context, kind state.Kind, v interface{}) error {
	if s.client != nil {
		data, err := s.client.Get(ctx, stateKey(kind)).Bytes()
		switch {
		case err == nil:
			if uerr := json.Unmarshal(data, v); uerr != nil {
				return fmt.Errorf("unmarshal %s: %w", kind, uerr)
			}
			return nil
		case errors.Is(err, redis.Nil):
		default:
			s.redisAvailable.Store(false)
			s.logger.Warn().Err(err).Str("kind", string(kind)).Msg("Redis read failed, using in-memory copy")
		}
	}

	s.mu.RLock()
	data, ok := s.cache[kind]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", kind, state.ErrNoSnapshot)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", kind, err)
	}
	return nil
}
