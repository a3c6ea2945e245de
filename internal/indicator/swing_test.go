package indicator

import (
	"testing"

	"impulse-trading-bot/internal/market"
)

// TestSwingHighs tests strict local-extreme detection
func TestSwingHighs(t *testing.T) {
	candles := []market.Candle{
		{High: 10, Low: 9},
		{High: 11, Low: 9.5},
		{High: 15, Low: 10}, // swing high
		{High: 12, Low: 10.5},
		{High: 11, Low: 10},
	}

	swings := SwingHighs(candles, 2)
	if len(swings) != 1 {
		t.Fatalf("Expected 1 swing high, got %d", len(swings))
	}
	if swings[0].CandleIndex != 2 || swings[0].Price != 15 {
		t.Errorf("Expected swing high 15 at index 2, got %f at %d", swings[0].Price, swings[0].CandleIndex)
	}
	if swings[0].Type != "high" {
		t.Errorf("Expected type high, got %s", swings[0].Type)
	}
}

// TestSwingHighsRejectsEqualHighs tests that a tied high is not a swing
func TestSwingHighsRejectsEqualHighs(t *testing.T) {
	candles := []market.Candle{
		{High: 10}, {High: 15}, {High: 15}, {High: 12}, {High: 11},
	}

	if swings := SwingHighs(candles, 2); len(swings) != 0 {
		t.Errorf("Expected no swing on a tied high, got %d", len(swings))
	}
}

// TestSwingLows tests the mirrored low detection
func TestSwingLows(t *testing.T) {
	candles := []market.Candle{
		{High: 10, Low: 9},
		{High: 9.5, Low: 8},
		{High: 9, Low: 5}, // swing low
		{High: 10, Low: 7},
		{High: 10.5, Low: 8},
	}

	swings := SwingLows(candles, 2)
	if len(swings) != 1 {
		t.Fatalf("Expected 1 swing low, got %d", len(swings))
	}
	if swings[0].CandleIndex != 2 || swings[0].Price != 5 {
		t.Errorf("Expected swing low 5 at index 2, got %f at %d", swings[0].Price, swings[0].CandleIndex)
	}
}

// TestSwingsTooFewCandles tests that short series yield nothing
func TestSwingsTooFewCandles(t *testing.T) {
	candles := []market.Candle{{High: 10, Low: 9}, {High: 11, Low: 10}}

	if swings := SwingHighs(candles, 2); swings != nil {
		t.Errorf("Expected nil, got %d swings", len(swings))
	}
	if swings := SwingLows(candles, 2); swings != nil {
		t.Errorf("Expected nil, got %d swings", len(swings))
	}
}
