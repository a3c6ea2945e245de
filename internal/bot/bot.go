// Package bot runs the scan loop that feeds both engines: it pulls candles
// for every configured symbol, lets the detection engine walk its setups,
// ticks open positions against the latest price, and executes the exits the
// lifecycle engine signals. All persistence, notifications, events and
// metrics fan out from here so the engines stay free of I/O.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"impulse-trading-bot/config"
	"impulse-trading-bot/internal/circuit"
	"impulse-trading-bot/internal/events"
	"impulse-trading-bot/internal/exchange"
	"impulse-trading-bot/internal/indicator"
	"impulse-trading-bot/internal/market"
	"impulse-trading-bot/internal/metrics"
	"impulse-trading-bot/internal/notification"
	"impulse-trading-bot/internal/position"
	"impulse-trading-bot/internal/setup"
	"impulse-trading-bot/internal/store"

	"github.com/rs/zerolog"
)

const atrPeriod = 14

// Bot orchestrates scanning, trading and bookkeeping. The mirror and m
// arguments may be nil; everything else is required.
type Bot struct {
	cfg       config.BotConfig
	exchange  *exchange.Client
	setups    *setup.Engine
	positions *position.Engine
	breaker   *circuit.CircuitBreaker
	store     store.Store
	mirror    *store.RedisMirror
	eventBus  *events.EventBus
	notifier  *notification.Manager
	metrics   *metrics.Metrics
	trend     *indicator.TrendAnalyzer
	logger    zerolog.Logger

	mu        sync.Mutex
	running   bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
	startedAt time.Time

	scanCount atomic.Int64
	lastScan  atomic.Int64 // unix seconds of the last completed scan
}

// NewBot wires the orchestrator and registers the circuit breaker callbacks.
func NewBot(
	cfg config.BotConfig,
	ex *exchange.Client,
	setups *setup.Engine,
	positions *position.Engine,
	breaker *circuit.CircuitBreaker,
	st store.Store,
	mirror *store.RedisMirror,
	eventBus *events.EventBus,
	notifier *notification.Manager,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Bot {
	b := &Bot{
		cfg:       cfg,
		exchange:  ex,
		setups:    setups,
		positions: positions,
		breaker:   breaker,
		store:     st,
		mirror:    mirror,
		eventBus:  eventBus,
		notifier:  notifier,
		metrics:   m,
		trend:     indicator.NewTrendAnalyzer(5),
		logger:    logger.With().Str("component", "bot").Logger(),
	}

	breaker.OnTrip(func(reason string) {
		b.logger.Warn().Str("reason", reason).Msg("Circuit breaker tripped, entries halted")
		b.eventBus.PublishHalt(true, reason)
		b.notifier.SendTradingHalted(reason)
		if b.metrics != nil {
			b.metrics.SetBreakerState(string(circuit.StateOpen))
			b.metrics.BreakerTrips.Inc()
		}
	})
	breaker.OnReset(func() {
		b.logger.Info().Msg("Circuit breaker reset, entries resumed")
		b.eventBus.PublishHalt(false, "")
		b.notifier.SendTradingResumed()
		if b.metrics != nil {
			b.metrics.SetBreakerState(string(circuit.StateClosed))
		}
	})

	return b
}

// Restore reloads persisted state into the engines. Snapshots the engines
// reject (played out, terminal, duplicate) are pruned from the store.
func (b *Bot) Restore(ctx context.Context) error {
	setups, positions, acct, fromMirror, err := b.loadStartupState(ctx)
	if err != nil {
		return err
	}
	if acct != nil {
		b.positions.RestoreBalance(acct.Balance, acct.PeakBalance, acct.MaxDrawdownPercent)
	}

	restoredSetups := 0
	for _, s := range setups {
		if b.setups.Restore(s) {
			restoredSetups++
			continue
		}
		if fromMirror {
			continue
		}
		if err := b.store.DeleteSetup(ctx, s.Key().String()); err != nil {
			b.logger.Warn().Err(err).Str("key", s.Key().String()).Msg("Failed to prune stale setup")
		}
	}

	restoredPositions := 0
	for _, p := range positions {
		if err := b.positions.Restore(p); err != nil {
			b.logger.Warn().Err(err).Str("key", p.Key).Msg("Skipping unrestorable position snapshot")
			if fromMirror {
				continue
			}
			if err := b.store.DeletePosition(ctx, p.Key); err != nil {
				b.logger.Warn().Err(err).Str("key", p.Key).Msg("Failed to prune stale position")
			}
			continue
		}
		restoredPositions++
	}

	b.logger.Info().
		Int("setups", restoredSetups).
		Int("positions", restoredPositions).
		Bool("from_mirror", fromMirror).
		Float64("balance", b.positions.Balance()).
		Msg("State restored")
	return nil
}

// loadStartupState reads the startup snapshot from the durable store. When
// the store cannot serve it the Redis mirror is consulted instead, so a dead
// database does not drop hot positions across a restart.
func (b *Bot) loadStartupState(ctx context.Context) ([]setup.Setup, []position.Position, *store.Account, bool, error) {
	var loadErr error

	acct, err := b.store.LoadAccount(ctx)
	acctPtr := &acct
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		// First run, engine keeps its configured initial balance.
		acctPtr = nil
	default:
		loadErr = fmt.Errorf("load account: %w", err)
	}

	var setups []setup.Setup
	var positions []position.Position
	if loadErr == nil {
		if setups, err = b.store.LoadSetups(ctx); err != nil {
			loadErr = fmt.Errorf("load setups: %w", err)
		}
	}
	if loadErr == nil {
		if positions, err = b.store.LoadPositions(ctx); err != nil {
			loadErr = fmt.Errorf("load positions: %w", err)
		}
	}
	if loadErr == nil {
		return setups, positions, acctPtr, false, nil
	}

	if b.mirror == nil {
		return nil, nil, nil, false, loadErr
	}
	b.logger.Warn().Err(loadErr).Msg("Store snapshot unavailable, consulting Redis mirror")
	live, mirrorErr := b.mirror.Load(ctx)
	if mirrorErr != nil {
		b.logger.Warn().Err(mirrorErr).Msg("Redis mirror snapshot unavailable too")
		return nil, nil, nil, false, loadErr
	}
	return live.Setups, live.Positions, live.Account, true, nil
}

// Start launches the scan loop. Returns an error if already running.
func (b *Bot) Start() error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot already running")
	}
	b.stopChan = make(chan struct{})
	b.running = true
	b.startedAt = time.Now()
	b.mu.Unlock()

	b.wg.Add(1)
	go b.scanLoop()

	b.logger.Info().
		Strs("symbols", b.cfg.Symbols).
		Str("timeframe", b.cfg.Timeframe).
		Bool("auto_trade", b.cfg.AutoTrade).
		Int("workers", b.workerCount()).
		Msg("Bot started")

	b.eventBus.Publish(events.Event{
		Type: events.EventBotStarted,
		Data: map[string]interface{}{
			"symbols":    b.cfg.Symbols,
			"timeframe":  b.cfg.Timeframe,
			"auto_trade": b.cfg.AutoTrade,
		},
	})
	return nil
}

// Stop halts the scan loop and waits for in-flight scans to finish. Open
// positions stay tracked; only evaluation pauses.
func (b *Bot) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot is not running")
	}
	b.running = false
	close(b.stopChan)
	b.mu.Unlock()

	b.wg.Wait()

	b.logger.Info().Msg("Bot stopped")
	b.eventBus.Publish(events.Event{Type: events.EventBotStopped})
	return nil
}

// IsRunning reports whether the scan loop is active.
func (b *Bot) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *Bot) workerCount() int {
	if b.cfg.WorkerCount < 1 {
		return 1
	}
	return b.cfg.WorkerCount
}

func (b *Bot) scanInterval() time.Duration {
	if b.cfg.ScanIntervalSecs <= 0 {
		return time.Minute
	}
	return time.Duration(b.cfg.ScanIntervalSecs) * time.Second
}

// scanLoop runs one scan immediately, then one per interval until stopped.
func (b *Bot) scanLoop() {
	defer b.wg.Done()

	interval := b.scanInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	stop := b.stopChan
	b.runScan(stop)
	for {
		select {
		case <-ticker.C:
			b.runScan(stop)
		case <-stop:
			return
		}
	}
}

// runScan dispatches all symbols across the worker pool and refreshes the
// metric gauges once every worker drains.
func (b *Bot) runScan(stop <-chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), b.scanInterval())
	defer cancel()

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < b.workerCount(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				b.scanSymbol(ctx, symbol)
			}
		}()
	}

dispatch:
	for _, symbol := range b.cfg.Symbols {
		select {
		case jobs <- symbol:
		case <-stop:
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	b.scanCount.Add(1)
	b.lastScan.Store(time.Now().Unix())
	b.updateGauges()
}

// scanSymbol runs one full detection and lifecycle cycle for a symbol.
func (b *Bot) scanSymbol(ctx context.Context, symbol string) {
	start := time.Now()

	fetchStart := time.Now()
	candles, err := b.exchange.GetCandles(ctx, symbol, b.cfg.Timeframe, b.cfg.CandleLimit)
	if b.metrics != nil {
		b.metrics.ExchangeFetchDur.Observe(time.Since(fetchStart).Seconds())
	}
	if err != nil {
		b.logger.Warn().Err(err).Str("symbol", symbol).Msg("Candle fetch failed")
		b.eventBus.PublishError("bot", "candle fetch failed for "+symbol, err)
		if b.metrics != nil {
			b.metrics.ExchangeErrors.Inc()
		}
		return
	}
	if len(candles) == 0 {
		return
	}
	price := candles[len(candles)-1].Close

	htf := b.htfTrend(ctx, symbol)

	for _, dir := range []market.Direction{market.Long, market.Short} {
		key := setup.SetupKey{Symbol: symbol, Timeframe: b.cfg.Timeframe, Direction: dir}
		evts := b.setups.Evaluate(key, candles, htf)
		b.handleSetupEvents(ctx, evts, candles)
		b.tickPosition(ctx, key.String(), price)
	}

	if b.metrics != nil {
		b.metrics.CandlesFetched.Add(float64(len(candles)))
		b.metrics.EvaluationsTotal.WithLabelValues(symbol, b.cfg.Timeframe).Inc()
		b.metrics.EvaluationDur.Observe(time.Since(start).Seconds())
	}
}

// htfTrend fetches the higher timeframe and scores its trend. Failures
// degrade to nil, which the detection engine treats as "no assessment".
func (b *Bot) htfTrend(ctx context.Context, symbol string) *market.TrendSignal {
	if b.cfg.HTFTimeframe == "" {
		return nil
	}
	candles, err := b.exchange.GetCandles(ctx, symbol, b.cfg.HTFTimeframe, b.cfg.CandleLimit)
	if err != nil {
		b.logger.Debug().Err(err).Str("symbol", symbol).Msg("HTF candle fetch failed")
		return nil
	}
	return b.trend.Analyze(candles)
}

// handleSetupEvents persists, publishes and acts on detection engine output.
func (b *Bot) handleSetupEvents(ctx context.Context, evts []setup.Event, candles []market.Candle) {
	for _, evt := range evts {
		s := evt.Setup
		key := s.Key().String()

		switch evt.Type {
		case setup.EventCreated:
			b.persistSetup(ctx, s)
			b.eventBus.PublishSetupCreated(s)
			b.notifier.SendSetupTriggered(s.Symbol, s.Timeframe, string(s.Direction), string(s.Classification), s.OscValue, s.StructureStop)
			if b.metrics != nil {
				b.metrics.SetupsCreated.WithLabelValues(string(s.Direction)).Inc()
			}
			b.maybeOpenPosition(s, candles)

		case setup.EventUpdated:
			b.persistSetup(ctx, s)
			b.eventBus.PublishSetupUpdated(s)

		case setup.EventRemoved:
			b.removeSetup(ctx, key)
			b.eventBus.PublishSetupRemoved(s)
			if b.metrics != nil {
				b.metrics.SetupsRemoved.WithLabelValues(string(s.PlayedOutReason)).Inc()
			}
		}
	}
}

// maybeOpenPosition applies the entry policy to a freshly created setup.
func (b *Bot) maybeOpenPosition(s setup.Setup, candles []market.Candle) {
	if !b.cfg.AutoTrade {
		return
	}
	if s.Classification == setup.ClassificationExhaustion && !b.cfg.TradeExhaustion {
		b.logger.Debug().Str("key", s.Key().String()).Msg("Skipping exhaustion setup, trading disabled for variant")
		return
	}
	if ok, reason := b.breaker.CanTrade(); !ok {
		b.logger.Debug().Str("reason", reason).Msg("Entry blocked by circuit breaker")
		return
	}

	key := s.Key().String()
	req := position.OpenRequest{
		Key:        key,
		Symbol:     s.Symbol,
		Timeframe:  s.Timeframe,
		Direction:  s.Direction,
		Price:      s.CurrentPrice,
		Margin:     b.cfg.MarginPerTrade,
		Leverage:   b.cfg.Leverage,
		StopPrice:  s.StructureStop,
		ATRPercent: indicator.ATRPercent(candles, atrPeriod),
	}

	p, err := b.positions.Open(req)
	if err != nil {
		if errors.Is(err, position.ErrMaxPositions) || errors.Is(err, position.ErrInsufficientBalance) || errors.Is(err, position.ErrPositionExists) {
			b.logger.Debug().Err(err).Str("key", key).Msg("Entry declined")
			return
		}
		b.logger.Error().Err(err).Str("key", key).Msg("Entry failed")
		b.eventBus.PublishError("bot", "entry failed for "+key, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b.persistPosition(ctx, p)
	b.persistAccount(ctx)

	b.eventBus.PublishPositionOpened(p)
	b.notifier.SendPositionOpened(p.Symbol, string(p.Direction), p.EntryPrice, p.Margin, p.Leverage, p.StopLossPrice)
	if b.metrics != nil {
		b.metrics.PositionsOpened.WithLabelValues(string(p.Direction)).Inc()
	}
}

// tickPosition feeds the latest price to the lifecycle engine and acts on
// protective notices and exit signals.
func (b *Bot) tickPosition(ctx context.Context, key string, price float64) {
	res, err := b.positions.Update(key, price, b.timeStopCheck())
	if err != nil {
		if !errors.Is(err, position.ErrPositionNotFound) {
			b.logger.Warn().Err(err).Str("key", key).Msg("Position update failed")
		}
		return
	}
	p := res.Position

	b.persistPosition(ctx, p)

	for _, notice := range res.Notices {
		switch notice {
		case position.NoticeBreakevenLocked:
			b.eventBus.PublishProtectiveNotice(events.EventBreakevenLocked, p)
			b.notifier.SendStopMoved(p.Symbol, "breakeven", p.StopLossPrice, p.TrailLevel)
		case position.NoticeTrailingActivated:
			b.eventBus.PublishProtectiveNotice(events.EventTrailingActivated, p)
			b.notifier.SendStopMoved(p.Symbol, "trailing", p.StopLossPrice, p.TrailLevel)
		case position.NoticeTrailingAdvanced:
			b.eventBus.PublishProtectiveNotice(events.EventTrailingAdvanced, p)
			b.notifier.SendStopMoved(p.Symbol, "trailing", p.StopLossPrice, p.TrailLevel)
		}
	}

	if res.Exit != nil {
		b.eventBus.PublishExitSignal(key, string(res.Exit.Reason), res.Exit.Price)
		if b.metrics != nil {
			b.metrics.ExitSignals.WithLabelValues(string(res.Exit.Reason)).Inc()
		}
		if err := b.executeClose(ctx, key, res.Exit.Price, res.Exit.Reason); err != nil {
			b.logger.Error().Err(err).Str("key", key).Msg("Exit execution failed")
		}
		return
	}

	b.eventBus.PublishPositionUpdate(p)
}

// timeStopCheck cuts positions that sit without protective progress for
// longer than the configured window. Zero config disables the check.
func (b *Bot) timeStopCheck() position.ExitCheck {
	if b.cfg.TimeStopMinutes <= 0 {
		return nil
	}
	maxAge := time.Duration(b.cfg.TimeStopMinutes) * time.Minute
	return func(p position.Position) (position.ExitReason, bool) {
		if p.BreakevenLocked || p.TrailingActive {
			return "", false
		}
		if time.Since(p.EntryTime) >= maxAge {
			return position.ExitTimeStop, true
		}
		return "", false
	}
}

// executeClose settles a position and fans out all bookkeeping: store,
// mirror, breaker, events, notifications and metrics.
func (b *Bot) executeClose(ctx context.Context, key string, price float64, reason position.ExitReason) error {
	closed, err := b.positions.Close(key, price, reason)
	if err != nil {
		return err
	}

	b.removePosition(ctx, key)
	b.recordClosed(ctx, closed)
	b.persistAccount(ctx)
	b.recordBalance(ctx, key, string(reason), closed.RealizedPnL)

	roi := 0.0
	if closed.Margin > 0 {
		roi = closed.RealizedPnL / closed.Margin * 100
	}
	b.breaker.RecordTrade(roi)

	balance := b.positions.Balance()
	b.eventBus.PublishPositionClosed(closed, balance)
	stats := b.positions.Stats()
	b.eventBus.PublishBalanceUpdate(stats.Balance, stats.PeakBalance, stats.MaxDrawdownPercent)
	b.notifier.SendPositionClosed(closed.Symbol, closed.EntryPrice, closed.ExitPrice, closed.RealizedPnL, roi, string(reason))
	if b.metrics != nil {
		b.metrics.PositionsClosed.WithLabelValues(string(reason)).Inc()
	}

	return nil
}

// ClosePosition closes an open position at the current market price. Used
// by the API for operator-initiated closes.
func (b *Bot) ClosePosition(key string) error {
	p, ok := b.positions.Get(key)
	if !ok {
		return position.ErrPositionNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	price := b.currentPrice(ctx, &p)
	return b.executeClose(ctx, key, price, position.ExitManual)
}

// PartialClosePosition settles a fraction of an open position at the
// current market price.
func (b *Bot) PartialClosePosition(key string, fraction float64) error {
	p, ok := b.positions.Get(key)
	if !ok {
		return position.ErrPositionNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	price := b.currentPrice(ctx, &p)
	before := p.RealizedPnL

	updated, err := b.positions.PartialClose(key, price, fraction)
	if err != nil {
		return err
	}

	b.persistPosition(ctx, updated)
	b.persistAccount(ctx)
	b.recordBalance(ctx, key, "partial_close", updated.RealizedPnL-before)
	b.eventBus.PublishPartialClose(updated, fraction, price, updated.RealizedPnL-before)
	return nil
}

// currentPrice asks the exchange, falling back to the last seen price so a
// flaky feed never blocks an operator close.
func (b *Bot) currentPrice(ctx context.Context, p *position.Position) float64 {
	price, err := b.exchange.GetPrice(ctx, p.Symbol)
	if err == nil && price > 0 {
		return price
	}
	b.logger.Warn().Err(err).Str("symbol", p.Symbol).Msg("Price fetch failed, using last seen price")
	if p.CurrentPrice > 0 {
		return p.CurrentPrice
	}
	return p.EntryPrice
}

// Status returns the live orchestrator snapshot for the API.
func (b *Bot) Status() map[string]interface{} {
	b.mu.Lock()
	running := b.running
	startedAt := b.startedAt
	b.mu.Unlock()

	uptime := int64(0)
	if running {
		uptime = int64(time.Since(startedAt).Seconds())
	}

	var lastScan interface{}
	if ts := b.lastScan.Load(); ts > 0 {
		lastScan = time.Unix(ts, 0).UTC()
	}

	stats := b.positions.Stats()
	canTrade, haltReason := b.breaker.CanTrade()

	status := map[string]interface{}{
		"running":        running,
		"uptime_seconds": uptime,
		"symbols":        b.cfg.Symbols,
		"timeframe":      b.cfg.Timeframe,
		"htf_timeframe":  b.cfg.HTFTimeframe,
		"auto_trade":     b.cfg.AutoTrade,
		"scan_count":     b.scanCount.Load(),
		"last_scan":      lastScan,
		"active_setups":  b.setups.Count(),
		"open_positions": stats.OpenPositions,
		"balance":        stats.Balance,
		"total_trades":   stats.TotalTrades,
		"win_rate":       stats.WinRate,
		"breaker_state":  string(b.breaker.GetState()),
		"can_trade":      canTrade,
	}
	if haltReason != "" {
		status["halt_reason"] = haltReason
	}
	return status
}

// ConfigSummary returns the safe-to-expose runtime configuration.
func (b *Bot) ConfigSummary() map[string]interface{} {
	return map[string]interface{}{
		"symbols":           b.cfg.Symbols,
		"timeframe":         b.cfg.Timeframe,
		"htf_timeframe":     b.cfg.HTFTimeframe,
		"scan_interval":     b.scanInterval().String(),
		"worker_count":      b.workerCount(),
		"candle_limit":      b.cfg.CandleLimit,
		"auto_trade":        b.cfg.AutoTrade,
		"trade_exhaustion":  b.cfg.TradeExhaustion,
		"margin_per_trade":  b.cfg.MarginPerTrade,
		"leverage":          b.cfg.Leverage,
		"time_stop_minutes": b.cfg.TimeStopMinutes,
	}
}

// updateGauges refreshes the snapshot-style metrics after a scan.
func (b *Bot) updateGauges() {
	if b.metrics == nil {
		return
	}
	stats := b.positions.Stats()
	b.metrics.ActiveSetups.Set(float64(b.setups.Count()))
	b.metrics.ActivePositions.Set(float64(stats.OpenPositions))
	b.metrics.Balance.Set(stats.Balance)
	b.metrics.PeakBalance.Set(stats.PeakBalance)
	b.metrics.MaxDrawdown.Set(stats.MaxDrawdownPercent)
	b.metrics.TotalPnL.Set(stats.TotalPnL)
	b.metrics.SetBreakerState(string(b.breaker.GetState()))
	hits, _, _ := b.exchange.CacheStats()
	b.metrics.KlineCacheHits.Set(float64(hits))
}

// ============================================================================
// PERSISTENCE FAN-OUT
// ============================================================================

func (b *Bot) observeStore(start time.Time, err error) {
	if b.metrics == nil {
		return
	}
	b.metrics.StoreWriteDur.Observe(time.Since(start).Seconds())
	if err != nil {
		b.metrics.StoreErrors.Inc()
	}
}

func (b *Bot) persistSetup(ctx context.Context, s setup.Setup) {
	start := time.Now()
	err := b.store.SaveSetup(ctx, s)
	b.observeStore(start, err)
	if err != nil {
		b.logger.Error().Err(err).Str("key", s.Key().String()).Msg("Failed to persist setup")
	}
	if b.mirror != nil {
		b.mirror.SaveSetup(ctx, s)
	}
}

func (b *Bot) removeSetup(ctx context.Context, key string) {
	start := time.Now()
	err := b.store.DeleteSetup(ctx, key)
	b.observeStore(start, err)
	if err != nil {
		b.logger.Error().Err(err).Str("key", key).Msg("Failed to delete setup")
	}
	if b.mirror != nil {
		b.mirror.DeleteSetup(ctx, key)
	}
}

func (b *Bot) persistPosition(ctx context.Context, p position.Position) {
	start := time.Now()
	err := b.store.SavePosition(ctx, p)
	b.observeStore(start, err)
	if err != nil {
		b.logger.Error().Err(err).Str("key", p.Key).Msg("Failed to persist position")
	}
	if b.mirror != nil {
		b.mirror.SavePosition(ctx, p)
	}
}

func (b *Bot) removePosition(ctx context.Context, key string) {
	start := time.Now()
	err := b.store.DeletePosition(ctx, key)
	b.observeStore(start, err)
	if err != nil {
		b.logger.Error().Err(err).Str("key", key).Msg("Failed to delete position")
	}
	if b.mirror != nil {
		b.mirror.DeletePosition(ctx, key)
	}
}

func (b *Bot) recordClosed(ctx context.Context, p position.Position) {
	start := time.Now()
	err := b.store.RecordClosedPosition(ctx, p)
	b.observeStore(start, err)
	if err != nil {
		b.logger.Error().Err(err).Str("key", p.Key).Msg("Failed to record closed position")
	}
}

func (b *Bot) persistAccount(ctx context.Context) {
	stats := b.positions.Stats()
	acct := store.Account{
		Balance:            stats.Balance,
		PeakBalance:        stats.PeakBalance,
		MaxDrawdownPercent: stats.MaxDrawdownPercent,
		UpdatedAt:          time.Now().UTC(),
	}
	start := time.Now()
	err := b.store.SaveAccount(ctx, acct)
	b.observeStore(start, err)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to persist account")
	}
	if b.mirror != nil {
		b.mirror.SaveAccount(ctx, acct)
	}
}

// recordBalance appends one balance history row after a settle.
func (b *Bot) recordBalance(ctx context.Context, key, reason string, change float64) {
	stats := b.positions.Stats()
	err := b.store.RecordBalance(ctx, store.BalanceEntry{
		Balance:     stats.Balance,
		PeakBalance: stats.PeakBalance,
		Change:      change,
		PositionKey: key,
		Reason:      reason,
		At:          time.Now().UTC(),
	})
	if err != nil {
		b.logger.Error().Err(err).Str("key", key).Msg("Failed to record balance history")
	}
}
