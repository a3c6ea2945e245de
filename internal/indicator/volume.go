package indicator

import (
	"impulse-trading-bot/internal/market"
)

// AverageVolume returns the mean volume of candles[from:to] (to exclusive),
// or 0 when the range is empty or out of bounds.
func AverageVolume(candles []market.Candle, from, to int) float64 {
	if from < 0 {
		from = 0
	}
	if to > len(candles) {
		to = len(candles)
	}
	if from >= to {
		return 0
	}

	sum := 0.0
	for i := from; i < to; i++ {
		sum += candles[i].Volume
	}
	return sum / float64(to-from)
}

// VolumeContraction reports whether the counter-move after the impulse ran on
// lighter volume than the impulse itself, the classic sign of a corrective
// pullback rather than genuine reversal pressure.
func VolumeContraction(candles []market.Candle, imp *Impulse) bool {
	if imp == nil || imp.EndIdx >= len(candles)-1 {
		return false
	}

	impulseAvg := AverageVolume(candles, imp.StartIdx, imp.EndIdx+1)
	pullbackAvg := AverageVolume(candles, imp.EndIdx+1, len(candles))
	if impulseAvg == 0 {
		return false
	}
	return pullbackAvg < impulseAvg
}
