package market

// Direction is the trade direction of a setup or position. Long setups are
// seeded by upward impulses and profit when price rises; shorts are the
// mirror. All direction-dependent comparisons go through the methods below
// so long/short logic is never hand-duplicated.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Opposite returns the other direction
func (d Direction) Opposite() Direction {
	if d == Short {
		return Long
	}
	return Short
}

// Sign returns +1 for long, -1 for short
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Valid reports whether d is a known direction
func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// Above reports whether a is past b on the profitable side of the trade:
// higher for longs, lower for shorts.
func (d Direction) Above(a, b float64) bool {
	if d == Short {
		return a < b
	}
	return a > b
}

// Below reports whether a is past b on the adverse side of the trade
func (d Direction) Below(a, b float64) bool {
	if d == Short {
		return a > b
	}
	return a < b
}

// StopHit reports whether price has reached the protective stop
func (d Direction) StopHit(price, stop float64) bool {
	if d == Short {
		return price >= stop
	}
	return price <= stop
}

// TargetHit reports whether price has reached the profit target
func (d Direction) TargetHit(price, target float64) bool {
	if d == Short {
		return price <= target
	}
	return price >= target
}

// Tighter reports whether newStop protects more than oldStop. A long stop
// only ever moves up, a short stop only ever moves down.
func (d Direction) Tighter(newStop, oldStop float64) bool {
	if d == Short {
		return newStop < oldStop
	}
	return newStop > oldStop
}

// OscThreshold mirrors a long-side oscillator threshold onto the direction's
// extreme zone on a 0-100 scale: an oversold level of 30 becomes an
// overbought level of 70 for shorts.
func (d Direction) OscThreshold(longSide float64) float64 {
	if d == Short {
		return 100 - longSide
	}
	return longSide
}

// IntoExtreme reports whether an oscillator value is at or beyond the
// (already mirrored) threshold: at-or-below for longs, at-or-above for shorts.
func (d Direction) IntoExtreme(value, threshold float64) bool {
	if d == Short {
		return value >= threshold
	}
	return value <= threshold
}

// CrossedInto reports whether the oscillator crossed into the extreme zone
// between the previous and current reading.
func (d Direction) CrossedInto(prev, cur, threshold float64) bool {
	if d == Short {
		return prev < threshold && cur >= threshold
	}
	return prev > threshold && cur <= threshold
}

// Deeper reports whether cur is further into the extreme zone than prev
func (d Direction) Deeper(cur, prev float64) bool {
	if d == Short {
		return cur > prev
	}
	return cur < prev
}

// PriceAtROI converts a return-on-margin percentage into the price at which
// an entry at entry with the given leverage realizes that return. Negative
// roi yields an adverse price, positive a favorable one.
func (d Direction) PriceAtROI(entry, roi, leverage float64) float64 {
	if leverage <= 0 {
		leverage = 1
	}
	return entry * (1 + d.Sign()*roi/100/leverage)
}

func (d Direction) String() string {
	return string(d)
}
