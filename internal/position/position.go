// Package position implements the position lifecycle engine: margin-backed
// positions moving through an explicit status machine with stop placement,
// breakeven locking and profit-tiered trailing stops. The engine owns all
// position state and the shared balance; it performs no I/O and signals exits
// to the caller instead of closing on its own.
package position

import (
	"time"

	"impulse-trading-bot/internal/market"
)

// Status is the lifecycle status of a position.
type Status string

const (
	StatusQueued          Status = "queued"
	StatusExecuting       Status = "executing"
	StatusOpen            Status = "open"
	StatusTrailing        Status = "trailing"
	StatusPartiallyClosed Status = "partially_closed"
	StatusClosing         Status = "closing"
	StatusClosed          Status = "closed"
	StatusFailed          Status = "failed"
)

// StopSource records which protective mechanism owns the current stop, so an
// exit at the stop is labeled by the mechanism active when it was hit.
type StopSource string

const (
	StopInitial   StopSource = "initial"
	StopBreakeven StopSource = "breakeven"
	StopTrailing  StopSource = "trailing"
)

// ExitReason labels why a position closed.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "closed_sl"
	ExitBreakeven  ExitReason = "closed_breakeven"
	ExitTrailing   ExitReason = "closed_trailing"
	ExitTakeProfit ExitReason = "closed_tp"
	ExitManual     ExitReason = "closed_manual"
	ExitTimeStop   ExitReason = "closed_time"
)

var allowedTransitions = map[Status][]Status{
	StatusQueued:          {StatusExecuting, StatusFailed},
	StatusExecuting:       {StatusOpen, StatusFailed},
	StatusOpen:            {StatusTrailing, StatusPartiallyClosed, StatusClosing},
	StatusTrailing:        {StatusPartiallyClosed, StatusClosing},
	StatusPartiallyClosed: {StatusTrailing, StatusClosing},
	StatusClosing:         {StatusClosed},
	StatusClosed:          {},
	StatusFailed:          {},
}

// CanTransition reports whether the status machine permits from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusFailed
}

// Position is one margin-backed trade owned by a lifecycle engine instance.
// Once Status reaches a terminal value the position moves to the closed
// collection and is never mutated again.
type Position struct {
	ID        string           `json:"id"`
	Key       string           `json:"key"`
	Symbol    string           `json:"symbol"`
	Timeframe string           `json:"timeframe"`
	Direction market.Direction `json:"direction"`
	Status    Status           `json:"status"`

	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
	Margin     float64   `json:"margin"`
	Notional   float64   `json:"notional"`
	Quantity   float64   `json:"quantity"`
	Leverage   float64   `json:"leverage"`

	InitialStop     float64    `json:"initial_stop"`
	StopLossPrice   float64    `json:"stop_loss_price"`
	StopSource      StopSource `json:"stop_source"`
	TakeProfitPrice float64    `json:"take_profit_price,omitempty"`

	BreakevenLocked bool    `json:"breakeven_locked"`
	TrailingActive  bool    `json:"trailing_active"`
	TrailLevel      int     `json:"trail_level"`
	PeakROI         float64 `json:"peak_roi"`

	CurrentPrice         float64 `json:"current_price"`
	UnrealizedPnL        float64 `json:"unrealized_pnl"`
	UnrealizedPnLPercent float64 `json:"unrealized_pnl_percent"`

	EntryFees  float64                 `json:"entry_fees"`
	Volatility market.VolatilityBucket `json:"volatility"`

	ExitPrice   float64    `json:"exit_price,omitempty"`
	ExitTime    time.Time  `json:"exit_time,omitempty"`
	ExitFees    float64    `json:"exit_fees,omitempty"`
	RealizedPnL float64    `json:"realized_pnl"`
	ExitReason  ExitReason `json:"exit_reason,omitempty"`

	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// ROI returns the return on margin, in percent, at the given price.
func (p *Position) ROI(price float64) float64 {
	if p.Margin <= 0 {
		return 0
	}
	pnl := (price - p.EntryPrice) * p.Quantity * p.Direction.Sign()
	return pnl / p.Margin * 100
}

// stopExitReason maps the active stop mechanism to its exit label.
func (p *Position) stopExitReason() ExitReason {
	switch p.StopSource {
	case StopBreakeven:
		return ExitBreakeven
	case StopTrailing:
		return ExitTrailing
	default:
		return ExitStopLoss
	}
}
