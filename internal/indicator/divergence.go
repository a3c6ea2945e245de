package indicator

import (
	"impulse-trading-bot/internal/market"
)

const (
	DivergenceBullish = "bullish"
	DivergenceBearish = "bearish"
)

// Divergence is a price/oscillator disagreement at consecutive swing points.
type Divergence struct {
	Type     string  `json:"type"`
	Strength float64 `json:"strength"` // 0..1
}

// DetectDivergence looks for a regular divergence supporting the given
// direction: for longs, price printing a lower swing low while the oscillator
// prints a higher low; mirrored for shorts. The oscillator series must be
// tail-aligned to the candles. Returns nil when no such disagreement exists
// or the relevant swings fall inside the oscillator warm-up.
func DetectDivergence(candles []market.Candle, osc []float64, d market.Direction) *Divergence {
	const swingLookback = 2

	if len(osc) == 0 {
		return nil
	}

	var swings []SwingPoint
	if d == market.Long {
		swings = SwingLows(candles, swingLookback)
	} else {
		swings = SwingHighs(candles, swingLookback)
	}
	if len(swings) < 2 {
		return nil
	}

	prev, last := swings[len(swings)-2], swings[len(swings)-1]
	prevOsc := AlignedIndex(len(candles), len(osc), prev.CandleIndex)
	lastOsc := AlignedIndex(len(candles), len(osc), last.CandleIndex)
	if prevOsc < 0 || lastOsc < 0 {
		return nil
	}

	if d == market.Long {
		if last.Price < prev.Price && osc[lastOsc] > osc[prevOsc] {
			return &Divergence{
				Type:     DivergenceBullish,
				Strength: divergenceStrength(osc[lastOsc] - osc[prevOsc]),
			}
		}
		return nil
	}

	if last.Price > prev.Price && osc[lastOsc] < osc[prevOsc] {
		return &Divergence{
			Type:     DivergenceBearish,
			Strength: divergenceStrength(osc[prevOsc] - osc[lastOsc]),
		}
	}
	return nil
}

func divergenceStrength(oscGap float64) float64 {
	strength := oscGap / 20
	if strength > 1 {
		return 1
	}
	return strength
}
