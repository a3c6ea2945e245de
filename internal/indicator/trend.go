package indicator

import (
	"impulse-trading-bot/internal/market"
)

// TrendAnalyzer derives a directional trend signal from market structure,
// used as the higher-timeframe confirmation input for setup detection.
type TrendAnalyzer struct {
	swingLookback int
}

// NewTrendAnalyzer creates a trend analyzer. swingLookback is the number of
// candles on each side a swing point must dominate.
func NewTrendAnalyzer(swingLookback int) *TrendAnalyzer {
	if swingLookback <= 0 {
		swingLookback = 5
	}
	return &TrendAnalyzer{swingLookback: swingLookback}
}

// Analyze counts higher highs, higher lows, lower highs and lower lows among
// the swing points and reduces them to a trend with a 0..1 confidence.
// Returns nil when there are too few candles to find swings.
func (ta *TrendAnalyzer) Analyze(candles []market.Candle) *market.TrendSignal {
	if len(candles) < ta.swingLookback*2+1 {
		return nil
	}

	highs := SwingHighs(candles, ta.swingLookback)
	lows := SwingLows(candles, ta.swingLookback)
	if len(highs)+len(lows) < 2 {
		return nil
	}

	var higherHighs, lowerHighs int
	for i := 1; i < len(highs); i++ {
		if highs[i].Price > highs[i-1].Price {
			higherHighs++
		} else if highs[i].Price < highs[i-1].Price {
			lowerHighs++
		}
	}

	var higherLows, lowerLows int
	for i := 1; i < len(lows); i++ {
		if lows[i].Price > lows[i-1].Price {
			higherLows++
		} else if lows[i].Price < lows[i-1].Price {
			lowerLows++
		}
	}

	total := higherHighs + higherLows + lowerHighs + lowerLows
	if total == 0 {
		return &market.TrendSignal{Trend: market.TrendNeutral, Confidence: 0}
	}

	bullish := higherHighs + higherLows
	bearish := lowerHighs + lowerLows

	signal := &market.TrendSignal{Trend: market.TrendNeutral}
	switch {
	case higherHighs > 0 && higherLows > 0 && bullish > bearish:
		signal.Trend = market.TrendBullish
		signal.Confidence = float64(bullish) / float64(total)
	case lowerHighs > 0 && lowerLows > 0 && bearish > bullish:
		signal.Trend = market.TrendBearish
		signal.Confidence = float64(bearish) / float64(total)
	default:
		signal.Confidence = 0.3
	}

	return signal
}
