package market

import "time"

// Candle represents one OHLCV bar. Series are always ordered ascending by
// open time, oldest first.
type Candle struct {
	OpenTime  int64   `json:"open_time"` // unix milliseconds
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time"`
}

// IsBullish reports whether the candle closed above its open
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// IsBearish reports whether the candle closed below its open
func (c Candle) IsBearish() bool {
	return c.Close < c.Open
}

// Range returns the high-low span
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// Time returns the candle open time
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.OpenTime)
}
