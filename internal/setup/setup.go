// Package setup implements the detection engine for the impulse-then-first-
// extreme pattern: a strong directional move, a pullback, and the first
// oscillator excursion beyond its extreme threshold since the move ended.
// The engine owns one Setup per (symbol, timeframe, direction) key and walks
// it through an explicit state machine until it plays out.
package setup

import (
	"fmt"
	"strings"
	"time"

	"impulse-trading-bot/internal/indicator"
	"impulse-trading-bot/internal/market"
)

// SetupState is the lifecycle state of a tracked setup.
type SetupState string

const (
	StateWatching    SetupState = "watching"
	StateTriggered   SetupState = "triggered"
	StateDeepExtreme SetupState = "deep_extreme"
	StateReversing   SetupState = "reversing"
	StatePlayedOut   SetupState = "played_out"
)

// Classification separates the valid pattern from its lower-confidence
// exhaustion variant.
type Classification string

const (
	ClassificationImpulseReversal Classification = "impulse_reversal"
	ClassificationExhaustion      Classification = "momentum_exhaustion"
)

// VariantFibRetracement tags setups whose pullback sits on a standard
// retracement level. The extension payload lives in Setup.Fib.
const VariantFibRetracement = "fib_retracement"

// Confirmation is the tri-state higher-timeframe alignment result.
type Confirmation string

const (
	ConfirmationConfirmed   Confirmation = "confirmed"
	ConfirmationUnconfirmed Confirmation = "unconfirmed"
	ConfirmationUnknown     Confirmation = "unknown"
)

// PlayedOutReason records why a setup left the active set.
type PlayedOutReason string

const (
	ReasonStructureBreak   PlayedOutReason = "structure_break"
	ReasonTargetReached    PlayedOutReason = "target_reached"
	ReasonSecondExtreme    PlayedOutReason = "second_extreme"
	ReasonRecoveryComplete PlayedOutReason = "recovery_complete"
)

// Oscillator short-term trend labels.
const (
	OscRising  = "rising"
	OscFalling = "falling"
	OscFlat    = "flat"
)

// SetupKey identifies the single setup slot for a market and direction.
type SetupKey struct {
	Symbol    string           `json:"symbol"`
	Timeframe string           `json:"timeframe"`
	Direction market.Direction `json:"direction"`
}

func (k SetupKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Symbol, k.Timeframe, k.Direction)
}

// ParseKey parses the "symbol:timeframe:direction" form produced by String.
func ParseKey(s string) (SetupKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return SetupKey{}, fmt.Errorf("malformed setup key %q", s)
	}
	k := SetupKey{Symbol: parts[0], Timeframe: parts[1], Direction: market.Direction(parts[2])}
	if k.Symbol == "" || k.Timeframe == "" || !k.Direction.Valid() {
		return SetupKey{}, fmt.Errorf("malformed setup key %q", s)
	}
	return k, nil
}

// FibDetail is the extension payload for fib-retracement setups.
type FibDetail struct {
	Ratio      float64              `json:"ratio"`
	LevelPrice float64              `json:"level_price"`
	Levels     *indicator.FibLevels `json:"levels"`
}

// Setup is one tracked pattern instance. The impulse reference is fixed for
// the setup's entire lifetime; when the structure changes the setup is
// retired and a fresh one detected.
type Setup struct {
	ID        string           `json:"id"`
	Symbol    string           `json:"symbol"`
	Timeframe string           `json:"timeframe"`
	Direction market.Direction `json:"direction"`

	State          SetupState     `json:"state"`
	Classification Classification `json:"classification"`
	Variant        string         `json:"variant,omitempty"`
	Fib            *FibDetail     `json:"fib,omitempty"`

	Impulse indicator.Impulse `json:"impulse"`

	OscValue       float64 `json:"osc_value"`
	OscPrev        float64 `json:"osc_prev"`
	OscAtTrigger   float64 `json:"osc_at_trigger"`
	OscTrend       string  `json:"osc_trend"`
	ThresholdCross bool    `json:"threshold_cross"`

	PullbackExtreme float64 `json:"pullback_extreme"`
	StructureStop   float64 `json:"structure_stop"`
	CurrentPrice    float64 `json:"current_price"`

	HTFAlignment      Confirmation          `json:"htf_alignment"`
	VolumeContraction bool                  `json:"volume_contraction"`
	Divergence        *indicator.Divergence `json:"divergence,omitempty"`

	Tier   int  `json:"tier"`
	CanAdd bool `json:"can_add"`

	PlayedOutReason PlayedOutReason `json:"played_out_reason,omitempty"`

	DetectedAt    time.Time `json:"detected_at"`
	TriggeredAt   time.Time `json:"triggered_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// Key returns the map key the setup is tracked under.
func (s *Setup) Key() SetupKey {
	return SetupKey{Symbol: s.Symbol, Timeframe: s.Timeframe, Direction: s.Direction}
}

// Actionable reports whether the setup is in a state a caller may act on.
func (s *Setup) Actionable() bool {
	return s.State == StateTriggered || s.State == StateDeepExtreme
}

var allowedSetupTransitions = map[SetupState][]SetupState{
	StateWatching:    {StateTriggered, StateDeepExtreme},
	StateTriggered:   {StateDeepExtreme, StateReversing, StatePlayedOut},
	StateDeepExtreme: {StateTriggered, StateReversing, StatePlayedOut},
	StateReversing:   {StatePlayedOut},
	StatePlayedOut:   {},
}

// CanTransitionSetup reports whether the state machine permits from -> to.
func CanTransitionSetup(from, to SetupState) bool {
	for _, s := range allowedSetupTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// EventType labels setup lifecycle notifications.
type EventType string

const (
	EventCreated EventType = "setup_created"
	EventUpdated EventType = "setup_updated"
	EventRemoved EventType = "setup_removed"
)

// Event carries a full setup snapshot to orchestration collaborators.
type Event struct {
	Type  EventType `json:"type"`
	Setup Setup     `json:"setup"`
}
