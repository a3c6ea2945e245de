package setup

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"impulse-trading-bot/internal/indicator"
	"impulse-trading-bot/internal/market"
)

// DetectionConfig holds the tunable thresholds of the detection engine.
// Oscillator thresholds are expressed for the long side and mirrored
// internally for shorts.
type DetectionConfig struct {
	Lookback          int     `json:"lookback"`
	MinImpulsePercent float64 `json:"min_impulse_percent"`
	MinDominance      float64 `json:"min_dominance"`

	OscPeriod            int     `json:"osc_period"`
	OscEntryThreshold    float64 `json:"osc_entry_threshold"`
	OscDeepThreshold     float64 `json:"osc_deep_threshold"`
	OscRecoveryThreshold float64 `json:"osc_recovery_threshold"`

	StructureStopBuffer    float64 `json:"structure_stop_buffer"`
	HTFConfidenceThreshold float64 `json:"htf_confidence_threshold"`
	TargetProximityPercent float64 `json:"target_proximity_percent"`
	ExhaustionRetracement  float64 `json:"exhaustion_retracement"`
	FibTolerance           float64 `json:"fib_tolerance"`
}

// DefaultDetectionConfig returns the standard thresholds.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		Lookback:               50,
		MinImpulsePercent:      5.0,
		MinDominance:           0.55,
		OscPeriod:              14,
		OscEntryThreshold:      30,
		OscDeepThreshold:       20,
		OscRecoveryThreshold:   45,
		StructureStopBuffer:    0.5,
		HTFConfidenceThreshold: 0.6,
		TargetProximityPercent: 1.0,
		ExhaustionRetracement:  0.618,
		FibTolerance:           0.03,
	}
}

// Engine tracks setups per key and advances them as new candles arrive. All
// state lives in the engine instance; callers may run several independent
// engines with different configs.
type Engine struct {
	cfg    DetectionConfig
	logger zerolog.Logger

	mu     sync.RWMutex
	setups map[SetupKey]*Setup
}

// NewEngine creates a detection engine.
func NewEngine(cfg DetectionConfig, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		logger: logger.With().Str("component", "setup_engine").Logger(),
		setups: make(map[SetupKey]*Setup),
	}
}

// Evaluate runs one detection cycle for the key: it either tries to create a
// setup (when none is tracked) or updates the tracked one. The returned
// events carry full snapshots. Insufficient input data is a silent no-op.
func (e *Engine) Evaluate(key SetupKey, candles []market.Candle, htf *market.TrendSignal) []Event {
	osc := indicator.RSISeries(candles, e.cfg.OscPeriod)
	if len(osc) < 2 {
		return nil
	}
	price := candles[len(candles)-1].Close

	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.setups[key]; ok {
		return e.updateSetup(s, osc, price)
	}
	return e.createSetup(key, candles, osc, price, htf)
}

// createSetup runs the creation checks in order and tracks the setup only
// when it comes out actionable.
func (e *Engine) createSetup(key SetupKey, candles []market.Candle, osc []float64, price float64, htf *market.TrendSignal) []Event {
	d := key.Direction
	if !d.Valid() {
		return nil
	}

	imp := indicator.DetectImpulse(candles, e.cfg.MinImpulsePercent, e.cfg.MinDominance, e.cfg.Lookback)
	if imp == nil || imp.Direction != d {
		return nil
	}

	alignment := ConfirmationUnknown
	if htf != nil {
		if htf.Confidence > e.cfg.HTFConfidenceThreshold {
			if !htf.Aligned(d) {
				return nil
			}
			alignment = ConfirmationConfirmed
		} else {
			alignment = ConfirmationUnconfirmed
		}
	}

	lo := math.Min(imp.StartPrice, imp.EndPrice)
	hi := math.Max(imp.StartPrice, imp.EndPrice)
	if price <= lo || price >= hi {
		return nil
	}

	entry := d.OscThreshold(e.cfg.OscEntryThreshold)
	cur := osc[len(osc)-1]
	prev := osc[len(osc)-2]
	if !d.IntoExtreme(cur, entry) {
		return nil
	}

	// Only the first excursion since the impulse ended is a valid entry.
	// Readings are counted per candle; warm-up candles have no reading.
	excursions := 0
	for i := imp.EndIdx + 1; i < len(candles); i++ {
		oi := indicator.AlignedIndex(len(candles), len(osc), i)
		if oi < 0 {
			continue
		}
		if d.IntoExtreme(osc[oi], entry) {
			excursions++
		}
	}
	if excursions != 1 {
		return nil
	}

	pullback := indicator.PullbackExtreme(candles, imp.EndIdx, d)
	stop := pullback * (1 - d.Sign()*e.cfg.StructureStopBuffer/100)

	deep := d.OscThreshold(e.cfg.OscDeepThreshold)
	state := StateTriggered
	tier := 1
	if d.IntoExtreme(cur, deep) {
		state = StateDeepExtreme
		tier = 2
	}

	classification := ClassificationImpulseReversal
	if indicator.RetracementRatio(imp, price) > e.cfg.ExhaustionRetracement {
		classification = ClassificationExhaustion
	}

	now := time.Now()
	s := &Setup{
		ID:                uuid.New().String(),
		Symbol:            key.Symbol,
		Timeframe:         key.Timeframe,
		Direction:         d,
		State:             state,
		Classification:    classification,
		Impulse:           *imp,
		OscValue:          cur,
		OscPrev:           prev,
		OscAtTrigger:      cur,
		OscTrend:          oscTrend(prev, cur),
		ThresholdCross:    d.CrossedInto(prev, cur, entry),
		PullbackExtreme:   pullback,
		StructureStop:     stop,
		CurrentPrice:      price,
		HTFAlignment:      alignment,
		VolumeContraction: indicator.VolumeContraction(candles, imp),
		Divergence:        indicator.DetectDivergence(candles, osc, d),
		Tier:              tier,
		CanAdd:            state == StateDeepExtreme && d.Deeper(cur, prev),
		DetectedAt:        now,
		TriggeredAt:       now,
		LastUpdatedAt:     now,
	}

	if ratio, ok := indicator.NearestFibRatio(imp, price, e.cfg.FibTolerance); ok {
		s.Variant = VariantFibRetracement
		s.Fib = &FibDetail{
			Ratio:      ratio,
			LevelPrice: imp.EndPrice - d.Sign()*imp.Range()*ratio,
			Levels:     indicator.CalculateFibLevels(imp),
		}
	}

	e.setups[key] = s
	e.logger.Info().
		Str("key", key.String()).
		Str("state", string(s.State)).
		Str("classification", string(s.Classification)).
		Float64("osc", cur).
		Float64("structure_stop", stop).
		Int("tier", tier).
		Msg("Setup created")

	return []Event{{Type: EventCreated, Setup: *s}}
}

// updateSetup advances a tracked setup: invalidation checks first, then
// oscillator-driven state transitions. A played-out setup is removed in the
// same call that reports it.
func (e *Engine) updateSetup(s *Setup, osc []float64, price float64) []Event {
	d := s.Direction
	cur := osc[len(osc)-1]

	s.OscPrev = s.OscValue
	s.OscValue = cur
	s.OscTrend = oscTrend(s.OscPrev, cur)
	s.CurrentPrice = price
	s.LastUpdatedAt = time.Now()

	entry := d.OscThreshold(e.cfg.OscEntryThreshold)
	deep := d.OscThreshold(e.cfg.OscDeepThreshold)
	recovery := d.OscThreshold(e.cfg.OscRecoveryThreshold)

	targetDistance := math.Abs(price-s.Impulse.EndPrice) / s.Impulse.EndPrice * 100

	var reason PlayedOutReason
	switch {
	case d.Below(price, s.Impulse.StartPrice):
		reason = ReasonStructureBreak
	case targetDistance <= e.cfg.TargetProximityPercent:
		reason = ReasonTargetReached
	case s.State == StateReversing && d.IntoExtreme(cur, entry):
		reason = ReasonSecondExtreme
	}
	if reason != "" {
		return e.retire(s, reason)
	}

	switch s.State {
	case StateTriggered:
		if d.IntoExtreme(cur, deep) {
			e.transition(s, StateDeepExtreme)
			s.Tier = 2
		} else if !d.IntoExtreme(cur, entry) {
			e.transition(s, StateReversing)
		}
	case StateDeepExtreme:
		if !d.IntoExtreme(cur, entry) {
			e.transition(s, StateReversing)
		} else if !d.IntoExtreme(cur, deep) {
			e.transition(s, StateTriggered)
		}
	case StateReversing:
		if !d.IntoExtreme(cur, recovery) {
			return e.retire(s, ReasonRecoveryComplete)
		}
	}

	s.CanAdd = s.State == StateDeepExtreme && d.Deeper(cur, s.OscPrev)

	return []Event{{Type: EventUpdated, Setup: *s}}
}

// retire marks the setup played out and deletes it from the tracked map,
// guaranteeing a single removal notification.
func (e *Engine) retire(s *Setup, reason PlayedOutReason) []Event {
	if !e.transition(s, StatePlayedOut) {
		return nil
	}
	s.PlayedOutReason = reason
	s.CanAdd = false
	delete(e.setups, s.Key())

	e.logger.Info().
		Str("key", s.Key().String()).
		Str("reason", string(reason)).
		Float64("price", s.CurrentPrice).
		Msg("Setup played out")

	return []Event{{Type: EventRemoved, Setup: *s}}
}

func (e *Engine) transition(s *Setup, to SetupState) bool {
	if !CanTransitionSetup(s.State, to) {
		e.logger.Error().
			Str("key", s.Key().String()).
			Str("from", string(s.State)).
			Str("to", string(to)).
			Msg("Rejected setup transition")
		return false
	}
	s.State = to
	return true
}

func oscTrend(prev, cur float64) string {
	switch {
	case cur > prev+0.01:
		return OscRising
	case cur < prev-0.01:
		return OscFalling
	default:
		return OscFlat
	}
}

// Get returns a snapshot of the tracked setup for the key.
func (e *Engine) Get(key SetupKey) (Setup, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.setups[key]
	if !ok {
		return Setup{}, false
	}
	return *s, true
}

// Active returns snapshots of all tracked setups.
func (e *Engine) Active() []Setup {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Setup, 0, len(e.setups))
	for _, s := range e.setups {
		out = append(out, *s)
	}
	return out
}

// Count returns the number of tracked setups.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.setups)
}

// Restore places a persisted snapshot back into the tracked map, used when
// resuming after a restart. Played-out and watching snapshots are skipped.
func (e *Engine) Restore(s Setup) bool {
	if s.State != StateTriggered && s.State != StateDeepExtreme && s.State != StateReversing {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.setups[s.Key()]; exists {
		return false
	}
	copied := s
	if copied.ID == "" {
		copied.ID = uuid.New().String()
	}
	e.setups[s.Key()] = &copied

	e.logger.Info().
		Str("key", s.Key().String()).
		Str("state", string(s.State)).
		Msg("Setup restored")
	return true
}
