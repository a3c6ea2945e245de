// Package indicator provides the pure-function analytics the detection
// engine runs on candle series: oscillator series, swing points, impulse
// qualification, divergence and volume studies. Nothing here keeps state or
// performs I/O.
package indicator

import (
	"math"

	"impulse-trading-bot/internal/market"
)

// RSISeries computes a Wilder-smoothed RSI series over the candle closes.
// The returned series is tail-aligned: it has len(candles)-period values and
// its first value belongs to candle index period. Returns nil when there are
// not enough candles to produce a single value.
func RSISeries(candles []market.Candle, period int) []float64 {
	if period <= 0 || len(candles) <= period {
		return nil
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := candles[i].Close - candles[i-1].Close
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss += -delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	series := make([]float64, 0, len(candles)-period)
	series = append(series, rsiValue(avgGain, avgLoss))

	for i := period + 1; i < len(candles); i++ {
		delta := candles[i].Close - candles[i-1].Close
		var gain, loss float64
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		series = append(series, rsiValue(avgGain, avgLoss))
	}

	return series
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// AlignedIndex maps a candle index onto a tail-aligned indicator series.
// Candles inside the warm-up region have no reading and map to -1.
func AlignedIndex(numCandles, seriesLen, candleIdx int) int {
	idx := candleIdx - (numCandles - seriesLen)
	if idx < 0 || idx >= seriesLen {
		return -1
	}
	return idx
}

// ATRPercent returns the simple average true range over the last period
// candles, expressed as a percent of the latest close.
func ATRPercent(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}

	trSum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		cur, prev := candles[i], candles[i-1]
		tr := math.Max(cur.High-cur.Low,
			math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
		trSum += tr
	}

	last := candles[len(candles)-1].Close
	if last == 0 {
		return 0
	}
	return trSum / float64(period) / last * 100
}
