package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"impulse-trading-bot/internal/position"
	"impulse-trading-bot/internal/setup"
)

// Redis key layout for the live state mirror
const (
	setupHashKey    = "impulsebot:setups"    // hash: setup key -> json
	positionHashKey = "impulsebot:positions" // hash: position key -> json
	accountKey      = "impulsebot:account"   // string: json

	// State outlives any realistic restart window
	liveStateTTL = 7 * 24 * time.Hour
)

// LiveState is the full mirrored snapshot.
type LiveState struct {
	Setups    []setup.Setup       `json:"setups"`
	Positions []position.Position `json:"positions"`
	Account   *Account            `json:"account,omitempty"`
}

// RedisMirror write-through mirrors live engine state to Redis for warm
// restarts and external consumers. Redis being down never fails the caller;
// the mirror marks itself unavailable and keeps trying on later writes.
type RedisMirror struct {
	client    *redis.Client
	logger    zerolog.Logger
	available atomic.Bool
}

// RedisConfig holds connection settings
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// NewRedisMirror connects to Redis. A nil return client inside means every
// call is a no-op; use Available to inspect the state.
func NewRedisMirror(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) *RedisMirror {
	m := &RedisMirror{
		logger: logger.With().Str("component", "redis_mirror").Logger(),
	}
	if cfg.Addr == "" {
		m.logger.Info().Msg("No Redis address configured, mirror disabled")
		return m
	}

	m.client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := m.client.Ping(pingCtx).Err(); err != nil {
		m.logger.Warn().Err(err).Msg("Redis unavailable at startup, mirror degraded")
		m.available.Store(false)
	} else {
		m.logger.Info().Str("addr", cfg.Addr).Msg("Redis mirror connected")
		m.available.Store(true)
	}
	return m
}

// Available reports whether the mirror reached Redis on its last operation
func (m *RedisMirror) Available() bool {
	return m.client != nil && m.available.Load()
}

// SaveSetup mirrors one setup
func (m *RedisMirror) SaveSetup(ctx context.Context, st setup.Setup) {
	m.hashSet(ctx, setupHashKey, st.Key().String(), st)
}

// DeleteSetup removes one setup from the mirror
func (m *RedisMirror) DeleteSetup(ctx context.Context, key string) {
	m.hashDel(ctx, setupHashKey, key)
}

// SavePosition mirrors one position
func (m *RedisMirror) SavePosition(ctx context.Context, p position.Position) {
	m.hashSet(ctx, positionHashKey, p.Key, p)
}

// DeletePosition removes one position from the mirror
func (m *RedisMirror) DeletePosition(ctx context.Context, key string) {
	m.hashDel(ctx, positionHashKey, key)
}

// SaveAccount mirrors the account scalars
func (m *RedisMirror) SaveAccount(ctx context.Context, a Account) {
	if m.client == nil {
		return
	}
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := m.client.Set(ctx, accountKey, data, liveStateTTL).Err(); err != nil {
		m.markDown(err)
		return
	}
	m.available.Store(true)
}

// Load returns the full mirrored snapshot
func (m *RedisMirror) Load(ctx context.Context) (LiveState, error) {
	var state LiveState
	if m.client == nil {
		return state, fmt.Errorf("redis mirror disabled")
	}

	setupRows, err := m.client.HGetAll(ctx, setupHashKey).Result()
	if err != nil {
		m.markDown(err)
		return state, fmt.Errorf("failed to load setups: %w", err)
	}
	for _, raw := range setupRows {
		var st setup.Setup
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			continue
		}
		state.Setups = append(state.Setups, st)
	}

	positionRows, err := m.client.HGetAll(ctx, positionHashKey).Result()
	if err != nil {
		m.markDown(err)
		return state, fmt.Errorf("failed to load positions: %w", err)
	}
	for _, raw := range positionRows {
		var p position.Position
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		state.Positions = append(state.Positions, p)
	}

	raw, err := m.client.Get(ctx, accountKey).Result()
	if err != nil && err != redis.Nil {
		m.markDown(err)
		return state, fmt.Errorf("failed to load account: %w", err)
	}
	if err == nil {
		var a Account
		if jsonErr := json.Unmarshal([]byte(raw), &a); jsonErr == nil {
			state.Account = &a
		}
	}

	m.available.Store(true)
	return state, nil
}

// CheckConnection performs a health check and updates availability
func (m *RedisMirror) CheckConnection(ctx context.Context) error {
	if m.client == nil {
		return fmt.Errorf("no redis client configured")
	}
	if err := m.client.Ping(ctx).Err(); err != nil {
		m.available.Store(false)
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if !m.available.Load() {
		m.logger.Info().Msg("Redis connection recovered")
	}
	m.available.Store(true)
	return nil
}

// Close releases the client
func (m *RedisMirror) Close() {
	if m.client != nil {
		m.client.Close()
	}
}

func (m *RedisMirror) hashSet(ctx context.Context, hash, field string, v interface{}) {
	if m.client == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	pipe := m.client.TxPipeline()
	pipe.HSet(ctx, hash, field, data)
	pipe.Expire(ctx, hash, liveStateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		m.markDown(err)
		return
	}
	m.available.Store(true)
}

func (m *RedisMirror) hashDel(ctx context.Context, hash, field string) {
	if m.client == nil {
		return
	}
	if err := m.client.HDel(ctx, hash, field).Err(); err != nil {
		m.markDown(err)
		return
	}
	m.available.Store(true)
}

func (m *RedisMirror) markDown(err error) {
	if m.available.Swap(false) {
		m.logger.Warn().Err(err).Msg("Redis mirror write failed, degraded")
	}
}
