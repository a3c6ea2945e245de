package market

import "context"

// Trend classifies the prevailing higher-timeframe direction
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// TrendSignal is a higher-timeframe trend assessment. Confidence is 0..1.
// A nil *TrendSignal means no assessment is available.
type TrendSignal struct {
	Trend      Trend   `json:"trend"`
	Confidence float64 `json:"confidence"`
}

// Aligned reports whether the trend agrees with the trade direction
func (s TrendSignal) Aligned(d Direction) bool {
	if d == Short {
		return s.Trend == TrendBearish
	}
	return s.Trend == TrendBullish
}

// CandleProvider supplies candle series and last prices. Implementations
// perform the actual I/O; the engines only ever see the returned slices.
type CandleProvider interface {
	// GetCandles returns up to limit most-recent candles for the symbol and
	// timeframe, ascending by open time.
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)

	// GetPrice returns the latest traded price for the symbol
	GetPrice(ctx context.Context, symbol string) (float64, error)
}
