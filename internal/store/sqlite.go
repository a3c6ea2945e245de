package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"impulse-trading-bot/internal/position"
	"impulse-trading-bot/internal/setup"
)

// SQLiteStore persists state in a local SQLite file. It carries the same
// snapshot schema as the PostgreSQL store and suits single-host runs where
// no database server is wanted.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (or creates) the database file and runs migrations.
func NewSQLiteStore(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// SQLite handles one writer at a time
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping sqlite database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "sqlite_store").Logger(),
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info().Str("path", path).Msg("Opened SQLite journal")
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS setups (
			key TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS positions (
			key TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS closed_positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL,
			symbol TEXT NOT NULL,
			exit_reason TEXT,
			realized_pnl REAL NOT NULL,
			data TEXT NOT NULL,
			closed_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_positions_symbol ON closed_positions(symbol)`,

		`CREATE TABLE IF NOT EXISTS account (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			balance REAL NOT NULL,
			peak_balance REAL NOT NULL,
			max_drawdown_percent REAL NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS balance_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			balance REAL NOT NULL,
			peak_balance REAL NOT NULL,
			change REAL NOT NULL,
			position_key TEXT,
			reason TEXT,
			at TIMESTAMP NOT NULL
		)`,
	}

	for i, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

// SaveSetup upserts a setup snapshot by key
func (s *SQLiteStore) SaveSetup(ctx context.Context, st setup.Setup) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal setup: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO setups (key, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		st.Key().String(), string(data),
	)
	return err
}

// DeleteSetup removes a setup by key
func (s *SQLiteStore) DeleteSetup(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM setups WHERE key = ?`, key)
	return err
}

// LoadSetups returns all persisted setups
func (s *SQLiteStore) LoadSetups(ctx context.Context) ([]setup.Setup, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM setups ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var setups []setup.Setup
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var st setup.Setup
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			s.logger.Error().Err(err).Msg("Skipping unreadable setup row")
			continue
		}
		setups = append(setups, st)
	}
	return setups, rows.Err()
}

// SavePosition upserts an active position snapshot by key
func (s *SQLiteStore) SavePosition(ctx context.Context, p position.Position) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO positions (key, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		p.Key, string(data),
	)
	return err
}

// DeletePosition removes an active position by key
func (s *SQLiteStore) DeletePosition(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE key = ?`, key)
	return err
}

// LoadPositions returns all persisted active positions
func (s *SQLiteStore) LoadPositions(ctx context.Context) ([]position.Position, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM positions ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []position.Position
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p position.Position
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			s.logger.Error().Err(err).Msg("Skipping unreadable position row")
			continue
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// RecordClosedPosition appends a settled position to the history
func (s *SQLiteStore) RecordClosedPosition(ctx context.Context, p position.Position) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO closed_positions (key, symbol, exit_reason, realized_pnl, data, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.Key, p.Symbol, string(p.ExitReason), p.RealizedPnL, string(data), p.ExitTime,
	)
	return err
}

// ClosedPositions returns history rows, most recent first
func (s *SQLiteStore) ClosedPositions(ctx context.Context, limit int) ([]position.Position, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM closed_positions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []position.Position
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p position.Position
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			continue
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// SaveAccount upserts the single account row
func (s *SQLiteStore) SaveAccount(ctx context.Context, a Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO account (id, balance, peak_balance, max_drawdown_percent, updated_at)
		 VALUES (1, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET
			balance = excluded.balance,
			peak_balance = excluded.peak_balance,
			max_drawdown_percent = excluded.max_drawdown_percent,
			updated_at = CURRENT_TIMESTAMP`,
		a.Balance, a.PeakBalance, a.MaxDrawdownPercent,
	)
	return err
}

// LoadAccount returns the persisted account scalars
func (s *SQLiteStore) LoadAccount(ctx context.Context) (Account, error) {
	var a Account
	err := s.db.QueryRowContext(ctx,
		`SELECT balance, peak_balance, max_drawdown_percent, updated_at FROM account WHERE id = 1`,
	).Scan(&a.Balance, &a.PeakBalance, &a.MaxDrawdownPercent, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	return a, err
}

// RecordBalance appends a balance history row
func (s *SQLiteStore) RecordBalance(ctx context.Context, e BalanceEntry) error {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO balance_history (balance, peak_balance, change, position_key, reason, at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Balance, e.PeakBalance, e.Change, e.PositionKey, e.Reason, at,
	)
	return err
}

// BalanceHistory returns balance rows, most recent first
func (s *SQLiteStore) BalanceHistory(ctx context.Context, limit int) ([]BalanceEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT balance, peak_balance, change, position_key, reason, at
		 FROM balance_history ORDER BY id DESC LIMIT ?`, limit)
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
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLiteStore) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
