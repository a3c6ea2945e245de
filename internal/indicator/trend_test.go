package indicator

import (
	"testing"

	"impulse-trading-bot/internal/market"
)

// TestAnalyzeBullishTrend tests higher-high/higher-low structure detection
func TestAnalyzeBullishTrend(t *testing.T) {
	candles := []market.Candle{
		{High: 10, Low: 8},
		{High: 14, Low: 9},    // swing high 14
		{High: 12, Low: 7},    // swing low 7
		{High: 15, Low: 9.5},  // swing high 15 (higher high)
		{High: 13, Low: 9},    // swing low 9 (higher low)
		{High: 14, Low: 10},
	}

	signal := NewTrendAnalyzer(1).Analyze(candles)
	if signal == nil {
		t.Fatal("Expected a trend signal, got nil")
	}
	if signal.Trend != market.TrendBullish {
		t.Errorf("Expected bullish trend, got %s", signal.Trend)
	}
	if signal.Confidence != 1.0 {
		t.Errorf("Expected confidence 1.0, got %f", signal.Confidence)
	}
	if !signal.Aligned(market.Long) {
		t.Error("Bullish trend should align with a long direction")
	}
	if signal.Aligned(market.Short) {
		t.Error("Bullish trend should not align with a short direction")
	}
}

// TestAnalyzeBearishTrend tests the mirrored structure
func TestAnalyzeBearishTrend(t *testing.T) {
	candles := []market.Candle{
		{High: 12, Low: 10},
		{High: 11, Low: 6},   // swing low 6
		{High: 13, Low: 8},   // swing high 13
		{High: 10.5, Low: 5}, // swing low 5 (lower low)
		{High: 11, Low: 7},   // swing high 11 (lower high)
		{High: 10, Low: 6},
	}

	signal := NewTrendAnalyzer(1).Analyze(candles)
	if signal == nil {
		t.Fatal("Expected a trend signal, got nil")
	}
	if signal.Trend != market.TrendBearish {
		t.Errorf("Expected bearish trend, got %s", signal.Trend)
	}
	if !signal.Aligned(market.Short) {
		t.Error("Bearish trend should align with a short direction")
	}
}

// TestAnalyzeTrendInsufficientData tests the nil return on short input
func TestAnalyzeTrendInsufficientData(t *testing.T) {
	candles := []market.Candle{{High: 10, Low: 9}, {High: 11, Low: 10}}

	if signal := NewTrendAnalyzer(5).Analyze(candles); signal != nil {
		t.Errorf("Expected nil for 2 candles, got %+v", signal)
	}
}
