package indicator

import (
	"impulse-trading-bot/internal/market"
)

// SwingPoint represents a significant price level
type SwingPoint struct {
	Price       float64 `json:"price"`
	CandleIndex int     `json:"candle_index"`
	Type        string  `json:"type"` // "high" or "low"
}

// SwingHighs identifies swing high points. A candle is a swing high when its
// high is strictly above every high within lookback candles on both sides.
func SwingHighs(candles []market.Candle, lookback int) []SwingPoint {
	var swings []SwingPoint

	for i := lookback; i < len(candles)-lookback; i++ {
		isSwingHigh := true
		currentHigh := candles[i].High

		for j := i - lookback; j <= i+lookback; j++ {
			if j != i && candles[j].High >= currentHigh {
				isSwingHigh = false
				break
			}
		}

		if isSwingHigh {
			swings = append(swings, SwingPoint{
				Price:       currentHigh,
				CandleIndex: i,
				Type:        "high",
			})
		}
	}

	return swings
}

// SwingLows identifies swing low points, mirroring SwingHighs.
func SwingLows(candles []market.Candle, lookback int) []SwingPoint {
	var swings []SwingPoint

	for i := lookback; i < len(candles)-lookback; i++ {
		isSwingLow := true
		currentLow := candles[i].Low

		for j := i - lookback; j <= i+lookback; j++ {
			if j != i && candles[j].Low <= currentLow {
				isSwingLow = false
				break
			}
		}

		if isSwingLow {
			swings = append(swings, SwingPoint{
				Price:       currentLow,
				CandleIndex: i,
				Type:        "low",
			})
		}
	}

	return swings
}

// PullbackExtreme returns the most adverse price reached after the impulse
// ended: the lowest low after endIdx for a long setup, the highest high for a
// short. Falls back to the impulse end price when no candles follow endIdx.
func PullbackExtreme(candles []market.Candle, endIdx int, d market.Direction) float64 {
	if endIdx < 0 || endIdx >= len(candles) {
		return 0
	}

	if endIdx == len(candles)-1 {
		if d == market.Long {
			return candles[endIdx].Low
		}
		return candles[endIdx].High
	}

	if d == market.Long {
		lowest := candles[endIdx+1].Low
		for i := endIdx + 2; i < len(candles); i++ {
			if candles[i].Low < lowest {
				lowest = candles[i].Low
			}
		}
		return lowest
	}

	highest := candles[endIdx+1].High
	for i := endIdx + 2; i < len(candles); i++ {
		if candles[i].High > highest {
			highest = candles[i].High
		}
	}
	return highest
}
