// Package store persists engine state so a restart can pick up exactly
// where the process left off. Implementations are snapshot-oriented: the
// engines hold the truth in memory and the store mirrors it.
package store

import (
	"context"
	"errors"
	"time"

	"impulse-trading-bot/internal/position"
	"impulse-trading-bot/internal/setup"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Account holds the persisted account scalars.
type Account struct {
	Balance            float64   `json:"balance"`
	PeakBalance        float64   `json:"peak_balance"`
	MaxDrawdownPercent float64   `json:"max_drawdown_percent"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// BalanceEntry is one append-only balance history row, written whenever a
// close or partial close changes the balance.
type BalanceEntry struct {
	Balance     float64   `json:"balance"`
	PeakBalance float64   `json:"peak_balance"`
	Change      float64   `json:"change"`
	PositionKey string    `json:"position_key,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

// Store is the persistence boundary for setups, positions and the account.
// Save calls upsert by key; Load calls return everything currently tracked.
type Store interface {
	SaveSetup(ctx context.Context, s setup.Setup) error
	DeleteSetup(ctx context.Context, key string) error
	LoadSetups(ctx context.Context) ([]setup.Setup, error)

	SavePosition(ctx context.Context, p position.Position) error
	DeletePosition(ctx context.Context, key string) error
	LoadPositions(ctx context.Context) ([]position.Position, error)

	RecordClosedPosition(ctx context.Context, p position.Position) error
	ClosedPositions(ctx context.Context, limit int) ([]position.Position, error)

	SaveAccount(ctx context.Context, a Account) error
	LoadAccount(ctx context.Context) (Account, error)

	RecordBalance(ctx context.Context, e BalanceEntry) error
	BalanceHistory(ctx context.Context, limit int) ([]BalanceEntry, error)

	Ping(ctx context.Context) error
	Close()
}
