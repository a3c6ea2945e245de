package indicator

import (
	"impulse-trading-bot/internal/market"
)

// Impulse describes a qualifying directional price swing inside a lookback
// window. Indices are absolute indices into the candle slice it was detected
// on.
type Impulse struct {
	StartIdx    int              `json:"start_idx"`
	EndIdx      int              `json:"end_idx"`
	StartPrice  float64          `json:"start_price"`
	EndPrice    float64          `json:"end_price"`
	StartTime   int64            `json:"start_time"`
	EndTime     int64            `json:"end_time"`
	PercentMove float64          `json:"percent_move"`
	Dominance   float64          `json:"dominance"`
	Direction   market.Direction `json:"direction"`
}

// Range returns the absolute price span of the impulse.
func (imp *Impulse) Range() float64 {
	if imp.Direction == market.Long {
		return imp.EndPrice - imp.StartPrice
	}
	return imp.StartPrice - imp.EndPrice
}

// DetectImpulse scans the last lookback candles for the strongest qualifying
// impulse: a window-low to window-high run (or high to low for the down case)
// whose percent size is at least minPercent and whose dominance, the fraction
// of window candles closing in the move's direction, is at least minDominance.
// Both directions are evaluated and the larger percent move wins. Returns nil
// when no candidate qualifies.
func DetectImpulse(candles []market.Candle, minPercent, minDominance float64, lookback int) *Impulse {
	if len(candles) < 2 {
		return nil
	}

	windowStart := len(candles) - lookback
	if windowStart < 0 {
		windowStart = 0
	}
	window := candles[windowStart:]
	if len(window) < 2 {
		return nil
	}

	var bullish, bearish int
	for _, c := range window {
		if c.IsBullish() {
			bullish++
		} else if c.IsBearish() {
			bearish++
		}
	}
	upDominance := float64(bullish) / float64(len(window))
	downDominance := float64(bearish) / float64(len(window))

	up := upCandidate(candles, windowStart, upDominance)
	down := downCandidate(candles, windowStart, downDominance)

	qualifies := func(imp *Impulse) bool {
		return imp != nil && imp.PercentMove >= minPercent && imp.Dominance >= minDominance
	}

	switch {
	case qualifies(up) && qualifies(down):
		if up.PercentMove >= down.PercentMove {
			return up
		}
		return down
	case qualifies(up):
		return up
	case qualifies(down):
		return down
	default:
		return nil
	}
}

// upCandidate builds the low-to-subsequent-high run for the window. The low is
// the lowest low in the window and the high is the highest high after it, so a
// monotone ramp whose low sits on the window edge still yields a candidate.
func upCandidate(candles []market.Candle, windowStart int, dominance float64) *Impulse {
	lowIdx := windowStart
	for i := windowStart + 1; i < len(candles); i++ {
		if candles[i].Low < candles[lowIdx].Low {
			lowIdx = i
		}
	}
	if lowIdx == len(candles)-1 {
		return nil
	}

	highIdx := lowIdx + 1
	for i := lowIdx + 2; i < len(candles); i++ {
		if candles[i].High > candles[highIdx].High {
			highIdx = i
		}
	}

	low := candles[lowIdx].Low
	high := candles[highIdx].High
	if low <= 0 || high <= low {
		return nil
	}

	return &Impulse{
		StartIdx:    lowIdx,
		EndIdx:      highIdx,
		StartPrice:  low,
		EndPrice:    high,
		StartTime:   candles[lowIdx].OpenTime,
		EndTime:     candles[highIdx].CloseTime,
		PercentMove: (high - low) / low * 100,
		Dominance:   dominance,
		Direction:   market.Long,
	}
}

// downCandidate mirrors upCandidate: highest high first, lowest low after it.
func downCandidate(candles []market.Candle, windowStart int, dominance float64) *Impulse {
	highIdx := windowStart
	for i := windowStart + 1; i < len(candles); i++ {
		if candles[i].High > candles[highIdx].High {
			highIdx = i
		}
	}
	if highIdx == len(candles)-1 {
		return nil
	}

	lowIdx := highIdx + 1
	for i := highIdx + 2; i < len(candles); i++ {
		if candles[i].Low < candles[lowIdx].Low {
			lowIdx = i
		}
	}

	high := candles[highIdx].High
	low := candles[lowIdx].Low
	if high <= 0 || low >= high {
		return nil
	}

	return &Impulse{
		StartIdx:    highIdx,
		EndIdx:      lowIdx,
		StartPrice:  high,
		EndPrice:    low,
		StartTime:   candles[highIdx].OpenTime,
		EndTime:     candles[lowIdx].CloseTime,
		PercentMove: (high - low) / high * 100,
		Dominance:   dominance,
		Direction:   market.Short,
	}
}

// RetracementRatio returns how far price has pulled back from the impulse end
// toward its start, as a fraction of the impulse range. 0 means price sits at
// the impulse end, 1 at its start; values above 1 mean price has gone past the
// start.
func RetracementRatio(imp *Impulse, price float64) float64 {
	r := imp.Range()
	if r <= 0 {
		return 0
	}
	return (imp.EndPrice - price) * imp.Direction.Sign() / r
}

// FibLevels holds the standard retracement prices of an impulse.
type FibLevels struct {
	Level0   float64 `json:"level_0"`
	Level236 float64 `json:"level_236"`
	Level382 float64 `json:"level_382"`
	Level50  float64 `json:"level_50"`
	Level618 float64 `json:"level_618"`
	Level786 float64 `json:"level_786"`
	Level100 float64 `json:"level_100"`
}

// CalculateFibLevels computes retracement prices from the impulse end back
// toward its start. Level0 is the impulse end, Level100 its start.
func CalculateFibLevels(imp *Impulse) *FibLevels {
	r := imp.Range()
	sign := imp.Direction.Sign()

	priceAt := func(ratio float64) float64 {
		return imp.EndPrice - sign*r*ratio
	}

	return &FibLevels{
		Level0:   priceAt(0),
		Level236: priceAt(0.236),
		Level382: priceAt(0.382),
		Level50:  priceAt(0.5),
		Level618: priceAt(0.618),
		Level786: priceAt(0.786),
		Level100: priceAt(1),
	}
}

var fibRatios = []float64{0.236, 0.382, 0.5, 0.618, 0.786}

// NearestFibRatio returns the standard retracement ratio closest to the
// current pullback depth, provided the distance is within tolerance (both in
// ratio units). ok is false when price is not near any level.
func NearestFibRatio(imp *Impulse, price, tolerance float64) (ratio float64, ok bool) {
	depth := RetracementRatio(imp, price)

	best := -1.0
	bestDist := tolerance
	for _, r := range fibRatios {
		dist := depth - r
		if dist < 0 {
			dist = -dist
		}
		if dist <= bestDist {
			best = r
			bestDist = dist
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}
