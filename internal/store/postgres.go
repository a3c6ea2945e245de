package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"impulse-trading-bot/internal/position"
	"impulse-trading-bot/internal/setup"
)

// PostgresConfig holds database configuration
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// PostgresStore persists state in PostgreSQL. Rows carry the full JSON
// snapshot plus a few indexed columns for history queries.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresStore connects, tunes the pool and runs migrations.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, logger zerolog.Logger) (*PostgresStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	s := &PostgresStore{
		pool:   pool,
		logger: logger.With().Str("component", "postgres_store").Logger(),
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s.logger.Info().Str("database", cfg.Database).Msg("Connected to PostgreSQL")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS setups (
			key VARCHAR(60) PRIMARY KEY,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS positions (
			key VARCHAR(60) PRIMARY KEY,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS closed_positions (
			id BIGSERIAL PRIMARY KEY,
			key VARCHAR(60) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			exit_reason VARCHAR(30),
			realized_pnl DOUBLE PRECISION NOT NULL,
			data JSONB NOT NULL,
			closed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_positions_symbol ON closed_positions(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_positions_closed_at ON closed_positions(closed_at DESC)`,

		`CREATE TABLE IF NOT EXISTS account (
			id SMALLINT PRIMARY KEY CHECK (id = 1),
			balance DOUBLE PRECISION NOT NULL,
			peak_balance DOUBLE PRECISION NOT NULL,
			max_drawdown_percent DOUBLE PRECISION NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS balance_history (
			id BIGSERIAL PRIMARY KEY,
			balance DOUBLE PRECISION NOT NULL,
			peak_balance DOUBLE PRECISION NOT NULL,
			change DOUBLE PRECISION NOT NULL,
			position_key VARCHAR(60),
			reason VARCHAR(30),
			at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_balance_history_at ON balance_history(at DESC)`,
	}

	for i, migration := range migrations {
		if _, err := s.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

// SaveSetup upserts a setup snapshot by key
func (s *PostgresStore) SaveSetup(ctx context.Context, st setup.Setup) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal setup: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO setups (key, data, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET data = $2, updated_at = now()`,
		st.Key().String(), data,
	)
	return err
}

// DeleteSetup removes a setup by key
func (s *PostgresStore) DeleteSetup(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM setups WHERE key = $1`, key)
	return err
}

// LoadSetups returns all persisted setups
func (s *PostgresStore) LoadSetups(ctx context.Context) ([]setup.Setup, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM setups ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var setups []setup.Setup
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var st setup.Setup
		if err := json.Unmarshal(data, &st); err != nil {
			s.logger.Error().Err(err).Msg("Skipping unreadable setup row")
			continue
		}
		setups = append(setups, st)
	}
	return setups, rows.Err()
}

// SavePosition upserts an active position snapshot by key
func (s *PostgresStore) SavePosition(ctx context.Context, p position.Position) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO positions (key, data, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET data = $2, updated_at = now()`,
		p.Key, data,
	)
	return err
}

// DeletePosition removes an active position by key
func (s *PostgresStore) DeletePosition(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE key = $1`, key)
	return err
}

// LoadPositions returns all persisted active positions
func (s *PostgresStore) LoadPositions(ctx context.Context) ([]position.Position, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM positions ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []position.Position
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p position.Position
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.Error().Err(err).Msg("Skipping unreadable position row")
			continue
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// RecordClosedPosition appends a settled position to the history
func (s *PostgresStore) RecordClosedPosition(ctx context.Context, p position.Position) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO closed_positions (key, symbol, exit_reason, realized_pnl, data, closed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.Key, p.Symbol, string(p.ExitReason), p.RealizedPnL, data, p.ExitTime,
	)
	return err
}

// ClosedPositions returns history rows, most recent first
func (s *PostgresStore) ClosedPositions(ctx context.Context, limit int) ([]position.Position, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM closed_positions ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []position.Position
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p position.Position
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// SaveAccount upserts the single account row
func (s *PostgresStore) SaveAccount(ctx context.Context, a Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO account (id, balance, peak_balance, max_drawdown_percent, updated_at)
		 VALUES (1, $1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE SET
			balance = $1, peak_balance = $2, max_drawdown_percent = $3, updated_at = now()`,
		a.Balance, a.PeakBalance, a.MaxDrawdownPercent,
	)
	return err
}

// LoadAccount returns the persisted account scalars
func (s *PostgresStore) LoadAccount(ctx context.Context) (Account, error) {
	var a Account
	err := s.pool.QueryRow(ctx,
		`SELECT balance, peak_balance, max_drawdown_percent, updated_at FROM account WHERE id = 1`,
	).Scan(&a.Balance, &a.PeakBalance, &a.MaxDrawdownPercent, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	return a, err
}

// RecordBalance appends a balance history row
func (s *PostgresStore) RecordBalance(ctx context.Context, e BalanceEntry) error {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO balance_history (balance, peak_balance, change, position_key, reason, at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.Balance, e.PeakBalance, e.Change, e.PositionKey, e.Reason, at,
	)
	return err
}

// BalanceHistory returns balance rows, most recent first
func (s *PostgresStore) BalanceHistory(ctx context.Context, limit int) ([]BalanceEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT balance, peak_balance, change, position_key, reason, at
		 FROM balance_history ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []BalanceEntry
	for rows.Next() {
		var e BalanceEntry
		if err := rows.Scan(&e.Balance, &e.PeakBalance, &e.Change, &e.PositionKey, &e.Reason, &e.At); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Ping performs a database health check
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info().Msg("Database connection closed")
	}
}
