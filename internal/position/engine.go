package position

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"impulse-trading-bot/internal/market"
)

// LifecycleConfig holds stop, breakeven and trailing parameters. Percent
// values are returns on margin, not raw price moves.
type LifecycleConfig struct {
	InitialBalance float64 `json:"initial_balance"`
	MaxPositions   int     `json:"max_positions"`

	StopLossPercent   float64 `json:"stop_loss_percent"`
	TakeProfitPercent float64 `json:"take_profit_percent"`

	BreakevenTriggerPercent float64 `json:"breakeven_trigger_percent"`
	BreakevenBufferPercent  float64 `json:"breakeven_buffer_percent"`

	TrailTriggerPercent float64 `json:"trail_trigger_percent"`
	TrailStepPercent    float64 `json:"trail_step_percent"`
}

// DefaultLifecycleConfig returns the standard risk parameters.
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		InitialBalance:          10000,
		MaxPositions:            5,
		StopLossPercent:         20,
		TakeProfitPercent:       0,
		BreakevenTriggerPercent: 10,
		BreakevenBufferPercent:  0.1,
		TrailTriggerPercent:     10,
		TrailStepPercent:        5,
	}
}

// OpenRequest describes a directional entry.
type OpenRequest struct {
	Key       string           `json:"key"`
	Symbol    string           `json:"symbol"`
	Timeframe string           `json:"timeframe"`
	Direction market.Direction `json:"direction"`

	Price    float64 `json:"price"`
	Margin   float64 `json:"margin"`
	Leverage float64 `json:"leverage"`

	// Optional overrides; zero falls back to config-derived prices.
	StopPrice       float64 `json:"stop_price,omitempty"`
	TakeProfitPrice float64 `json:"take_profit_price,omitempty"`

	// Recent volatility, used to bucket execution costs.
	ATRPercent float64 `json:"atr_percent,omitempty"`
}

// Notice flags a protective-state change produced by an update.
type Notice string

const (
	NoticeBreakevenLocked   Notice = "breakeven_locked"
	NoticeTrailingActivated Notice = "trailing_activated"
	NoticeTrailingAdvanced  Notice = "trailing_advanced"
)

// ExitSignal tells the caller an exit condition fired. The engine never
// closes on its own; the caller decides and invokes Close.
type ExitSignal struct {
	Reason ExitReason `json:"reason"`
	Price  float64    `json:"price"`
}

// ExitCheck is a caller-supplied exit condition evaluated after stop and
// take-profit checks.
type ExitCheck func(p Position) (ExitReason, bool)

// UpdateResult is the outcome of one price tick.
type UpdateResult struct {
	Position Position    `json:"position"`
	Notices  []Notice    `json:"notices,omitempty"`
	Exit     *ExitSignal `json:"exit,omitempty"`
}

// Stats summarizes the engine's account and trade history.
type Stats struct {
	Balance            float64 `json:"balance"`
	PeakBalance        float64 `json:"peak_balance"`
	MaxDrawdownPercent float64 `json:"max_drawdown_percent"`
	OpenPositions      int     `json:"open_positions"`
	TotalTrades        int     `json:"total_trades"`
	Wins               int     `json:"wins"`
	Losses             int     `json:"losses"`
	WinRate            float64 `json:"win_rate"`
	TotalPnL           float64 `json:"total_pnl"`
}

// Engine owns positions and the shared balance. Operations are synchronous
// all-or-nothing state transitions; callers serialize access per key.
type Engine struct {
	cfg    LifecycleConfig
	costs  market.CostModel
	logger zerolog.Logger

	mu          sync.RWMutex
	active      map[string]*Position
	closed      []*Position
	balance     float64
	peakBalance float64
	maxDrawdown float64
}

// NewEngine creates a lifecycle engine. A nil cost model falls back to the
// standard taker-fee model.
func NewEngine(cfg LifecycleConfig, costs market.CostModel, logger zerolog.Logger) *Engine {
	if costs == nil {
		costs = market.NewStandardCostModel()
	}
	return &Engine{
		cfg:         cfg,
		costs:       costs,
		logger:      logger.With().Str("component", "position_engine").Logger(),
		active:      make(map[string]*Position),
		balance:     cfg.InitialBalance,
		peakBalance: cfg.InitialBalance,
	}
}

// Open validates the request, reserves margin and creates the position. The
// status walks queued -> executing -> open inside this call; a rejected
// request has no side effects.
func (e *Engine) Open(req OpenRequest) (Position, error) {
	if req.Key == "" || req.Price <= 0 || req.Margin <= 0 || req.Leverage < 1 || !req.Direction.Valid() {
		return Position{}, ErrInvalidRequest
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.active[req.Key]; exists {
		return Position{}, ErrPositionExists
	}
	if e.cfg.MaxPositions > 0 && len(e.active) >= e.cfg.MaxPositions {
		return Position{}, ErrMaxPositions
	}
	if req.Margin > e.balance {
		return Position{}, ErrInsufficientBalance
	}

	d := req.Direction
	notional := req.Margin * req.Leverage
	bucket := market.BucketForATR(req.ATRPercent)

	now := time.Now()
	p := &Position{
		ID:         uuid.New().String(),
		Key:        req.Key,
		Symbol:     req.Symbol,
		Timeframe:  req.Timeframe,
		Direction:  d,
		Status:     StatusQueued,
		Margin:     req.Margin,
		Notional:   notional,
		Leverage:   req.Leverage,
		Volatility: bucket,
		EntryTime:  now,

		LastUpdatedAt: now,
	}

	if err := e.transition(p, StatusExecuting); err != nil {
		return Position{}, err
	}

	fill := e.costs.Entry(req.Price, notional, d, bucket)
	if fill.EffectivePrice <= 0 {
		p.Status = StatusFailed
		e.closed = append(e.closed, p)
		e.logger.Error().Str("key", req.Key).Float64("price", req.Price).Msg("Entry fill failed")
		return *p, ErrExecutionFailed
	}

	p.EntryPrice = fill.EffectivePrice
	p.EntryFees = fill.Fees
	p.Quantity = notional / fill.EffectivePrice
	p.CurrentPrice = fill.EffectivePrice

	p.StopLossPrice = req.StopPrice
	if p.StopLossPrice == 0 && e.cfg.StopLossPercent > 0 {
		p.StopLossPrice = d.PriceAtROI(p.EntryPrice, -e.cfg.StopLossPercent, req.Leverage)
	}
	p.InitialStop = p.StopLossPrice
	p.StopSource = StopInitial

	p.TakeProfitPrice = req.TakeProfitPrice
	if p.TakeProfitPrice == 0 && e.cfg.TakeProfitPercent > 0 {
		p.TakeProfitPrice = d.PriceAtROI(p.EntryPrice, e.cfg.TakeProfitPercent, req.Leverage)
	}

	if err := e.transition(p, StatusOpen); err != nil {
		return Position{}, err
	}

	e.balance -= req.Margin
	e.active[req.Key] = p

	e.logger.Info().
		Str("key", req.Key).
		Str("direction", string(d)).
		Float64("entry", p.EntryPrice).
		Float64("margin", req.Margin).
		Float64("notional", notional).
		Float64("stop", p.StopLossPrice).
		Msg("Position opened")

	return *p, nil
}

// Update processes one price tick: recompute ROI, run the breakeven lock,
// advance the trailing stop, then evaluate exit conditions in priority order
// (stop, take-profit, custom). The stop never loosens and the trail level
// never decreases.
func (e *Engine) Update(key string, price float64, custom ExitCheck) (UpdateResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.active[key]
	if !ok {
		return UpdateResult{}, ErrPositionNotFound
	}

	d := p.Direction
	p.CurrentPrice = price
	p.UnrealizedPnL = (price - p.EntryPrice) * p.Quantity * d.Sign()
	roi := p.ROI(price)
	p.UnrealizedPnLPercent = roi
	if roi > p.PeakROI {
		p.PeakROI = roi
	}
	p.LastUpdatedAt = time.Now()

	var notices []Notice

	if e.cfg.BreakevenTriggerPercent > 0 && !p.BreakevenLocked && roi >= e.cfg.BreakevenTriggerPercent {
		p.BreakevenLocked = true
		newStop := p.EntryPrice * (1 + d.Sign()*e.cfg.BreakevenBufferPercent/100)
		if d.Tighter(newStop, p.StopLossPrice) {
			p.StopLossPrice = newStop
			p.StopSource = StopBreakeven
		}
		notices = append(notices, NoticeBreakevenLocked)
		e.logger.Info().Str("key", key).Float64("roi", roi).Float64("stop", p.StopLossPrice).Msg("Breakeven locked")
	}

	if e.cfg.TrailTriggerPercent > 0 && e.cfg.TrailStepPercent > 0 && roi >= e.cfg.TrailTriggerPercent {
		activated := false
		if !p.TrailingActive {
			p.TrailingActive = true
			activated = true
			notices = append(notices, NoticeTrailingActivated)
		}

		moved := activated
		level := int(math.Floor((roi-e.cfg.TrailTriggerPercent)/e.cfg.TrailStepPercent)) + 1
		if level > p.TrailLevel {
			p.TrailLevel = level
			moved = true
			lockROI := float64(level-1) * e.cfg.TrailStepPercent
			newStop := d.PriceAtROI(p.EntryPrice, lockROI, p.Leverage)
			if d.Tighter(newStop, p.StopLossPrice) {
				p.StopLossPrice = newStop
				p.StopSource = StopTrailing
			}
			if !activated {
				notices = append(notices, NoticeTrailingAdvanced)
			}
			e.logger.Info().
				Str("key", key).
				Int("level", level).
				Float64("locked_roi", lockROI).
				Float64("stop", p.StopLossPrice).
				Msg("Trailing stop moved")
		}

		if moved && (p.Status == StatusOpen || p.Status == StatusPartiallyClosed) {
			if err := e.transition(p, StatusTrailing); err != nil {
				return UpdateResult{}, err
			}
		}
	}

	var exit *ExitSignal
	switch {
	case p.StopLossPrice > 0 && d.StopHit(price, p.StopLossPrice):
		exit = &ExitSignal{Reason: p.stopExitReason(), Price: p.StopLossPrice}
	case p.TakeProfitPrice > 0 && d.TargetHit(price, p.TakeProfitPrice):
		exit = &ExitSignal{Reason: ExitTakeProfit, Price: p.TakeProfitPrice}
	case custom != nil:
		if reason, hit := custom(*p); hit {
			exit = &ExitSignal{Reason: reason, Price: price}
		}
	}

	return UpdateResult{Position: *p, Notices: notices, Exit: exit}, nil
}

// Close settles the position at the given price: net P&L is the gross move
// minus entry and exit costs, and margin plus net P&L returns to the balance.
// The position moves to the closed collection in the same operation.
func (e *Engine) Close(key string, price float64, reason ExitReason) (Position, error) {
	if price <= 0 {
		return Position{}, ErrInvalidRequest
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.active[key]
	if !ok {
		return Position{}, ErrPositionNotFound
	}
	if !CanTransition(p.Status, StatusClosing) {
		e.logger.Error().Str("key", key).Str("status", string(p.Status)).Msg("Close rejected by status machine")
		return Position{}, ErrInvalidTransition
	}

	d := p.Direction
	fill := e.costs.Exit(price, p.Notional, d, p.Volatility)
	gross := (fill.EffectivePrice - p.EntryPrice) * p.Quantity * d.Sign()
	net := gross - p.EntryFees - fill.Fees

	if err := e.transition(p, StatusClosing); err != nil {
		return Position{}, err
	}

	p.ExitPrice = fill.EffectivePrice
	p.ExitTime = time.Now()
	p.ExitFees = fill.Fees
	p.RealizedPnL += net
	p.ExitReason = reason
	p.CurrentPrice = fill.EffectivePrice
	p.UnrealizedPnL = 0
	p.UnrealizedPnLPercent = 0
	p.LastUpdatedAt = p.ExitTime

	if err := e.transition(p, StatusClosed); err != nil {
		return Position{}, err
	}

	e.balance += p.Margin + net
	e.markBalance()

	delete(e.active, key)
	e.closed = append(e.closed, p)

	e.logger.Info().
		Str("key", key).
		Str("reason", string(reason)).
		Float64("exit", p.ExitPrice).
		Float64("net_pnl", net).
		Float64("balance", e.balance).
		Msg("Position closed")

	return *p, nil
}

// PartialClose settles a fraction of the position at an intermediate target.
// Margin, notional and entry costs are prorated; the remainder stays open
// under partially_closed and keeps the full protective logic.
func (e *Engine) PartialClose(key string, price, fraction float64) (Position, error) {
	if price <= 0 {
		return Position{}, ErrInvalidRequest
	}
	if fraction <= 0 || fraction >= 1 {
		return Position{}, ErrInvalidFraction
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.active[key]
	if !ok {
		return Position{}, ErrPositionNotFound
	}
	if p.Status != StatusPartiallyClosed && !CanTransition(p.Status, StatusPartiallyClosed) {
		return Position{}, ErrInvalidTransition
	}

	d := p.Direction
	closedNotional := p.Notional * fraction
	closedQuantity := p.Quantity * fraction
	closedMargin := p.Margin * fraction
	closedEntryFees := p.EntryFees * fraction

	fill := e.costs.Exit(price, closedNotional, d, p.Volatility)
	gross := (fill.EffectivePrice - p.EntryPrice) * closedQuantity * d.Sign()
	net := gross - closedEntryFees - fill.Fees

	if p.Status != StatusPartiallyClosed {
		if err := e.transition(p, StatusPartiallyClosed); err != nil {
			return Position{}, err
		}
	}

	p.Notional -= closedNotional
	p.Quantity -= closedQuantity
	p.Margin -= closedMargin
	p.EntryFees -= closedEntryFees
	p.RealizedPnL += net
	p.CurrentPrice = price
	p.UnrealizedPnL = (price - p.EntryPrice) * p.Quantity * d.Sign()
	p.UnrealizedPnLPercent = p.ROI(price)
	p.LastUpdatedAt = time.Now()

	e.balance += closedMargin + net
	e.markBalance()

	e.logger.Info().
		Str("key", key).
		Float64("fraction", fraction).
		Float64("net_pnl", net).
		Float64("remaining_notional", p.Notional).
		Msg("Position partially closed")

	return *p, nil
}

// Restore places a persisted snapshot back into the active map without
// touching the balance; use RestoreBalance for the account scalars.
func (e *Engine) Restore(p Position) error {
	if p.Status != StatusOpen && p.Status != StatusTrailing && p.Status != StatusPartiallyClosed {
		return ErrInvalidRequest
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.active[p.Key]; exists {
		return ErrPositionExists
	}
	copied := p
	if copied.ID == "" {
		copied.ID = uuid.New().String()
	}
	e.active[p.Key] = &copied

	e.logger.Info().Str("key", p.Key).Str("status", string(p.Status)).Msg("Position restored")
	return nil
}

// RestoreBalance sets the account scalars from a persisted snapshot.
func (e *Engine) RestoreBalance(balance, peak, maxDrawdown float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.balance = balance
	e.peakBalance = peak
	e.maxDrawdown = maxDrawdown
	if e.peakBalance < e.balance {
		e.peakBalance = e.balance
	}
}

func (e *Engine) transition(p *Position, to Status) error {
	if !CanTransition(p.Status, to) {
		e.logger.Error().
			Str("key", p.Key).
			Str("from", string(p.Status)).
			Str("to", string(to)).
			Msg("Rejected status transition")
		return ErrInvalidTransition
	}
	p.Status = to
	return nil
}

// markBalance refreshes the peak-balance high-water mark and drawdown.
func (e *Engine) markBalance() {
	if e.balance > e.peakBalance {
		e.peakBalance = e.balance
	}
	if e.peakBalance > 0 {
		dd := (e.peakBalance - e.balance) / e.peakBalance * 100
		if dd > e.maxDrawdown {
			e.maxDrawdown = dd
		}
	}
}

// Get returns a snapshot of an active position.
func (e *Engine) Get(key string) (Position, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.active[key]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Active returns snapshots of all open positions.
func (e *Engine) Active() []Position {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Position, 0, len(e.active))
	for _, p := range e.active {
		out = append(out, *p)
	}
	return out
}

// Closed returns snapshots of the closed collection, oldest first.
func (e *Engine) Closed() []Position {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Position, 0, len(e.closed))
	for _, p := range e.closed {
		out = append(out, *p)
	}
	return out
}

// Count returns the number of active positions.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.active)
}

// Balance returns the available balance.
func (e *Engine) Balance() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.balance
}

// Stats aggregates account and trade history figures. Failed entries are
// excluded from the trade counts.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Stats{
		Balance:            e.balance,
		PeakBalance:        e.peakBalance,
		MaxDrawdownPercent: e.maxDrawdown,
		OpenPositions:      len(e.active),
	}
	for _, p := range e.closed {
		if p.Status != StatusClosed {
			continue
		}
		s.TotalTrades++
		s.TotalPnL += p.RealizedPnL
		if p.RealizedPnL > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.TotalTrades) * 100
	}
	return s
}
