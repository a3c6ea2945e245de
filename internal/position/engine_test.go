package position

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"impulse-trading-bot/internal/market"
)

func frictionlessEngine(cfg LifecycleConfig) *Engine {
	return NewEngine(cfg, market.FreeCostModel{}, zerolog.Nop())
}

func longRequest(key string) OpenRequest {
	return OpenRequest{
		Key:       key,
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Direction: market.Long,
		Price:     100,
		Margin:    1000,
		Leverage:  10,
	}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// TestOpenPosition tests the happy path through queued -> executing -> open
func TestOpenPosition(t *testing.T) {
	engine := frictionlessEngine(DefaultLifecycleConfig())

	p, err := engine.Open(longRequest("btc-long"))
	if err != nil {
		t.Fatalf("Expected open to succeed, got %v", err)
	}

	if p.Status != StatusOpen {
		t.Errorf("Expected open, got %s", p.Status)
	}
	if p.EntryPrice != 100 {
		t.Errorf("Expected frictionless entry at 100, got %f", p.EntryPrice)
	}
	if p.Notional != 10000 || p.Quantity != 100 {
		t.Errorf("Expected notional 10000 qty 100, got %f and %f", p.Notional, p.Quantity)
	}
	// 20 percent of margin at 10x leverage is a 2 percent price offset
	if !near(p.StopLossPrice, 98) {
		t.Errorf("Expected initial stop 98, got %f", p.StopLossPrice)
	}
	if p.StopSource != StopInitial || p.InitialStop != p.StopLossPrice {
		t.Errorf("Expected initial stop source, got %s", p.StopSource)
	}
	if p.TrailLevel != 0 || p.PeakROI != 0 || p.BreakevenLocked {
		t.Error("Fresh position should have zero trailing state")
	}
	if engine.Balance() != 9000 {
		t.Errorf("Expected margin reserved, balance 9000, got %f", engine.Balance())
	}
	if engine.Count() != 1 {
		t.Errorf("Expected 1 active position, got %d", engine.Count())
	}
}

// TestOpenUsesStructureStop tests the stop override from a setup
func TestOpenUsesStructureStop(t *testing.T) {
	engine := frictionlessEngine(DefaultLifecycleConfig())

	req := longRequest("btc-long")
	req.StopPrice = 97.3
	p, err := engine.Open(req)
	if err != nil {
		t.Fatalf("Expected open to succeed, got %v", err)
	}
	if p.StopLossPrice != 97.3 {
		t.Errorf("Expected structure stop 97.3, got %f", p.StopLossPrice)
	}
}

// TestOpenRejections tests each rejection reason and that none has side
// effects
func TestOpenRejections(t *testing.T) {
	cfg := DefaultLifecycleConfig()
	cfg.MaxPositions = 1
	engine := frictionlessEngine(cfg)

	if _, err := engine.Open(longRequest("first")); err != nil {
		t.Fatalf("Expected first open to succeed, got %v", err)
	}

	if _, err := engine.Open(longRequest("first")); !errors.Is(err, ErrPositionExists) {
		t.Errorf("Expected ErrPositionExists, got %v", err)
	}
	if _, err := engine.Open(longRequest("second")); !errors.Is(err, ErrMaxPositions) {
		t.Errorf("Expected ErrMaxPositions, got %v", err)
	}

	cfg.MaxPositions = 5
	engine = frictionlessEngine(cfg)
	req := longRequest("big")
	req.Margin = 20000
	if _, err := engine.Open(req); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}

	bad := longRequest("bad")
	bad.Margin = 0
	if _, err := engine.Open(bad); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for zero margin, got %v", err)
	}
	bad = longRequest("bad")
	bad.Direction = ""
	if _, err := engine.Open(bad); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for missing direction, got %v", err)
	}
	bad = longRequest("bad")
	bad.Leverage = 0
	if _, err := engine.Open(bad); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for zero leverage, got %v", err)
	}

	if engine.Balance() != 10000 || engine.Count() != 0 {
		t.Errorf("Rejections must not mutate state, balance %f count %d", engine.Balance(), engine.Count())
	}
}

// TestFailedEntry tests that a dead fill records a failed position without
// touching the balance
func TestFailedEntry(t *testing.T) {
	engine := NewEngine(DefaultLifecycleConfig(), deadFillModel{}, zerolog.Nop())

	_, err := engine.Open(longRequest("btc-long"))
	if !errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("Expected ErrExecutionFailed, got %v", err)
	}
	if engine.Balance() != 10000 {
		t.Errorf("Failed entry must not reserve margin, balance %f", engine.Balance())
	}
	if engine.Count() != 0 {
		t.Errorf("Failed entry must not stay active, count %d", engine.Count())
	}

	history := engine.Closed()
	if len(history) != 1 || history[0].Status != StatusFailed {
		t.Fatalf("Expected one failed position in history, got %+v", history)
	}
	if engine.Stats().TotalTrades != 0 {
		t.Error("Failed entries should not count as trades")
	}
}

type deadFillModel struct{}

func (deadFillModel) Entry(price, notional float64, d market.Direction, bucket market.VolatilityBucket) market.Costs {
	return market.Costs{}
}

func (deadFillModel) Exit(price, notional float64, d market.Direction, bucket market.VolatilityBucket) market.Costs {
	return market.Costs{}
}

// TestBalanceConservation tests that margin is fully returned and the
// balance moves by exactly the realized P&L
func TestBalanceConservation(t *testing.T) {
	engine := frictionlessEngine(DefaultLifecycleConfig())
	before := engine.Balance()

	if _, err := engine.Open(longRequest("btc-long")); err != nil {
		t.Fatalf("Expected open to succeed, got %v", err)
	}
	if _, err := engine.Update("btc-long", 103, nil); err != nil {
		t.Fatalf("Expected update to succeed, got %v", err)
	}

	p, err := engine.Close("btc-long", 105, ExitManual)
	if err != nil {
		t.Fatalf("Expected close to succeed, got %v", err)
	}

	if !near(p.RealizedPnL, 500) {
		t.Errorf("Expected realized 500, got %f", p.RealizedPnL)
	}
	if engine.Balance() != before+p.RealizedPnL {
		t.Errorf("Expected balance %f, got %f", before+p.RealizedPnL, engine.Balance())
	}
	if p.Status != StatusClosed {
		t.Errorf("Expected closed, got %s", p.Status)
	}
	if engine.Count() != 0 || len(engine.Closed()) != 1 {
		t.Error("Closed position must leave the active set and join history in one operation")
	}
}

// TestCloseAppliesCosts tests fee and slippage deduction through the
// standard cost model
func TestCloseAppliesCosts(t *testing.T) {
	engine := NewEngine(DefaultLifecycleConfig(), market.NewStandardCostModel(), zerolog.Nop())

	req := longRequest("btc-long")
	p, err := engine.Open(req)
	if err != nil {
		t.Fatalf("Expected open to succeed, got %v", err)
	}
	// Low volatility bucket: 1 bps slippage, 5 bps taker fee on 10000
	if !near(p.EntryPrice, 100.01) {
		t.Errorf("Expected entry fill 100.01, got %f", p.EntryPrice)
	}
	if !near(p.EntryFees, 5) {
		t.Errorf("Expected entry fees 5, got %f", p.EntryFees)
	}

	closed, err := engine.Close("btc-long", 105, ExitManual)
	if err != nil {
		t.Fatalf("Expected close to succeed, got %v", err)
	}
	if closed.ExitPrice >= 105 {
		t.Errorf("Exit fill should be below the raw price for a long, got %f", closed.ExitPrice)
	}
	if closed.ExitFees <= 0 {
		t.Error("Expected exit fees to be charged")
	}
	wantGross := (closed.ExitPrice - closed.EntryPrice) * closed.Quantity
	if !near(closed.RealizedPnL, wantGross-closed.EntryFees-closed.ExitFees) {
		t.Errorf("Net P&L should subtract both cost legs, got %f", closed.RealizedPnL)
	}
}

// TestCloseRejections tests unknown keys, double closes and bad prices
func TestCloseRejections(t *testing.T) {
	engine := frictionlessEngine(DefaultLifecycleConfig())

	if _, err := engine.Close("ghost", 100, ExitManual); !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("Expected ErrPositionNotFound, got %v", err)
	}

	engine.Open(longRequest("btc-long"))
	if _, err := engine.Close("btc-long", 0, ExitManual); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for zero price, got %v", err)
	}

	if _, err := engine.Close("btc-long", 101, ExitManual); err != nil {
		t.Fatalf("Expected close to succeed, got %v", err)
	}
	if _, err := engine.Close("btc-long", 101, ExitManual); !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("A position must never close twice, got %v", err)
	}
}

// TestPartialClose tests prorated settlement and the remainder's lifecycle
func TestPartialClose(t *testing.T) {
	cfg := DefaultLifecycleConfig()
	cfg.BreakevenTriggerPercent = 0
	engine := frictionlessEngine(cfg)

	engine.Open(longRequest("btc-long"))

	for _, bad := range []float64{0, 1, -0.3, 1.5} {
		if _, err := engine.PartialClose("btc-long", 105, bad); !errors.Is(err, ErrInvalidFraction) {
			t.Errorf("Expected ErrInvalidFraction for %f, got %v", bad, err)
		}
	}

	p, err := engine.PartialClose("btc-long", 105, 0.5)
	if err != nil {
		t.Fatalf("Expected partial close to succeed, got %v", err)
	}
	if p.Status != StatusPartiallyClosed {
		t.Errorf("Expected partially_closed, got %s", p.Status)
	}
	if !near(p.Margin, 500) || !near(p.Notional, 5000) || !near(p.Quantity, 50) {
		t.Errorf("Expected half the position to remain, got margin %f notional %f qty %f", p.Margin, p.Notional, p.Quantity)
	}
	if !near(p.RealizedPnL, 250) {
		t.Errorf("Expected realized 250 on the closed leg, got %f", p.RealizedPnL)
	}
	// 500 margin plus 250 profit returned
	if !near(engine.Balance(), 9750) {
		t.Errorf("Expected balance 9750, got %f", engine.Balance())
	}

	// The remainder still trails: ROI 23 on the remaining margin locks 10
	res, err := engine.Update("btc-long", 102.3, nil)
	if err != nil {
		t.Fatalf("Expected update to succeed, got %v", err)
	}
	if res.Position.Status != StatusTrailing {
		t.Errorf("Expected the remainder to move to trailing, got %s", res.Position.Status)
	}
	if res.Position.TrailLevel != 3 || !near(res.Position.StopLossPrice, 101) {
		t.Errorf("Expected level 3 stop 101, got level %d stop %f", res.Position.TrailLevel, res.Position.StopLossPrice)
	}

	final, err := engine.Close("btc-long", 101, ExitTrailing)
	if err != nil {
		t.Fatalf("Expected close to succeed, got %v", err)
	}
	// 250 from the first leg plus 1 point on the remaining 50
	if !near(final.RealizedPnL, 300) {
		t.Errorf("Expected total realized 300, got %f", final.RealizedPnL)
	}
	if !near(engine.Balance(), 10300) {
		t.Errorf("Expected balance 10300, got %f", engine.Balance())
	}
}

// TestStats tests win/loss aggregation and drawdown tracking
func TestStats(t *testing.T) {
	engine := frictionlessEngine(DefaultLifecycleConfig())

	engine.Open(longRequest("win"))
	engine.Close("win", 105, ExitManual)

	engine.Open(longRequest("loss"))
	engine.Close("loss", 97, ExitStopLoss)

	stats := engine.Stats()
	if stats.TotalTrades != 2 || stats.Wins != 1 || stats.Losses != 1 {
		t.Errorf("Expected 2 trades 1/1, got %+v", stats)
	}
	if !near(stats.WinRate, 50) {
		t.Errorf("Expected win rate 50, got %f", stats.WinRate)
	}
	if !near(stats.TotalPnL, 200) {
		t.Errorf("Expected total P&L 200, got %f", stats.TotalPnL)
	}
	if !near(stats.Balance, 10200) || !near(stats.PeakBalance, 10500) {
		t.Errorf("Expected balance 10200 peak 10500, got %f and %f", stats.Balance, stats.PeakBalance)
	}
	wantDD := 300.0 / 10500 * 100
	if !near(stats.MaxDrawdownPercent, wantDD) {
		t.Errorf("Expected drawdown %f, got %f", wantDD, stats.MaxDrawdownPercent)
	}
}

// TestRestore tests snapshot recovery without balance side effects
func TestRestore(t *testing.T) {
	engine := frictionlessEngine(DefaultLifecycleConfig())

	snapshot := Position{
		Key:       "eth-long",
		Symbol:    "ETHUSDT",
		Direction: market.Long,
		Status:    StatusTrailing,

		EntryPrice: 2000,
		Margin:     500,
		Notional:   5000,
		Quantity:   2.5,
		Leverage:   10,

		StopLossPrice: 2010,
		StopSource:    StopTrailing,
		TrailLevel:    2,
	}
	if err := engine.Restore(snapshot); err != nil {
		t.Fatalf("Expected restore to succeed, got %v", err)
	}
	if engine.Balance() != 10000 {
		t.Errorf("Restore must not touch the balance, got %f", engine.Balance())
	}
	if err := engine.Restore(snapshot); !errors.Is(err, ErrPositionExists) {
		t.Errorf("Expected ErrPositionExists on a duplicate restore, got %v", err)
	}

	dead := snapshot
	dead.Key = "dead"
	dead.Status = StatusClosed
	if err := engine.Restore(dead); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for a terminal snapshot, got %v", err)
	}

	engine.RestoreBalance(9500, 10400, 8.65)
	if engine.Balance() != 9500 {
		t.Errorf("Expected restored balance 9500, got %f", engine.Balance())
	}
	stats := engine.Stats()
	if stats.PeakBalance != 10400 || stats.MaxDrawdownPercent != 8.65 {
		t.Errorf("Expected restored peak and drawdown, got %+v", stats)
	}
}

// TestTransitionTable tests the allowed path set and terminal statuses
func TestTransitionTable(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusQueued, StatusExecuting},
		{StatusQueued, StatusFailed},
		{StatusExecuting, StatusOpen},
		{StatusExecuting, StatusFailed},
		{StatusOpen, StatusTrailing},
		{StatusOpen, StatusPartiallyClosed},
		{StatusOpen, StatusClosing},
		{StatusTrailing, StatusPartiallyClosed},
		{StatusTrailing, StatusClosing},
		{StatusPartiallyClosed, StatusTrailing},
		{StatusPartiallyClosed, StatusClosing},
		{StatusClosing, StatusClosed},
	}
	for _, tr := range allowed {
		if !CanTransition(tr.from, tr.to) {
			t.Errorf("Expected %s -> %s to be allowed", tr.from, tr.to)
		}
	}

	rejected := []struct{ from, to Status }{
		{StatusQueued, StatusOpen},
		{StatusOpen, StatusClosed},
		{StatusOpen, StatusFailed},
		{StatusTrailing, StatusOpen},
		{StatusClosing, StatusOpen},
		{StatusClosed, StatusOpen},
		{StatusClosed, StatusClosing},
		{StatusFailed, StatusQueued},
	}
	for _, tr := range rejected {
		if CanTransition(tr.from, tr.to) {
			t.Errorf("Expected %s -> %s to be rejected", tr.from, tr.to)
		}
	}

	if !StatusClosed.Terminal() || !StatusFailed.Terminal() {
		t.Error("closed and failed must be terminal")
	}
	if StatusOpen.Terminal() || StatusClosing.Terminal() {
		t.Error("active statuses must not be terminal")
	}
}
