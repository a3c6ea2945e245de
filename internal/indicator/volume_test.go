package indicator

import (
	"testing"

	"impulse-trading-bot/internal/market"
)

// TestVolumeContraction tests light pullback volume against the impulse
func TestVolumeContraction(t *testing.T) {
	candles := []market.Candle{
		{Volume: 900}, {Volume: 1100}, {Volume: 1000}, {Volume: 1200},
		{Volume: 400}, {Volume: 500},
	}
	imp := &Impulse{StartIdx: 0, EndIdx: 3, Direction: market.Long}

	if !VolumeContraction(candles, imp) {
		t.Error("Pullback at less than half the impulse volume should contract")
	}

	// Heavy pullback volume: no contraction
	candles[4].Volume = 2000
	candles[5].Volume = 2000
	if VolumeContraction(candles, imp) {
		t.Error("Pullback above impulse volume should not contract")
	}
}

// TestVolumeContractionNoPullbackCandles tests the boundary guard
func TestVolumeContractionNoPullbackCandles(t *testing.T) {
	candles := []market.Candle{
		{Volume: 900}, {Volume: 1100}, {Volume: 1000},
	}
	imp := &Impulse{StartIdx: 0, EndIdx: 2, Direction: market.Long}

	if VolumeContraction(candles, imp) {
		t.Error("No candles after the impulse end should report false")
	}
	if VolumeContraction(candles, nil) {
		t.Error("Nil impulse should report false")
	}
}

// TestAverageVolume tests range handling
func TestAverageVolume(t *testing.T) {
	candles := []market.Candle{
		{Volume: 100}, {Volume: 200}, {Volume: 300},
	}

	if avg := AverageVolume(candles, 0, 3); avg != 200 {
		t.Errorf("Expected 200, got %f", avg)
	}
	if avg := AverageVolume(candles, 1, 2); avg != 200 {
		t.Errorf("Expected 200 for single candle, got %f", avg)
	}
	if avg := AverageVolume(candles, 2, 2); avg != 0 {
		t.Errorf("Expected 0 for empty range, got %f", avg)
	}
	if avg := AverageVolume(candles, -5, 99); avg != 200 {
		t.Errorf("Expected clamped range average 200, got %f", avg)
	}
}
