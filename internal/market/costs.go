package market

// VolatilityBucket coarsely classifies current volatility for slippage
// estimation.
type VolatilityBucket string

const (
	VolatilityLow    VolatilityBucket = "low"
	VolatilityMedium VolatilityBucket = "medium"
	VolatilityHigh   VolatilityBucket = "high"
)

// BucketForATR classifies an ATR-as-percent-of-price reading into a bucket
func BucketForATR(atrPercent float64) VolatilityBucket {
	switch {
	case atrPercent >= 2.0:
		return VolatilityHigh
	case atrPercent >= 0.8:
		return VolatilityMedium
	default:
		return VolatilityLow
	}
}

// Costs describes the friction applied to one fill: the slippage-adjusted
// fill price and the fee charged on notional.
type Costs struct {
	EffectivePrice float64 `json:"effective_price"`
	Fees           float64 `json:"fees"`
}

// CostModel estimates execution friction. Entry fills are adjusted against
// the trade direction (a long entry fills higher); exit fills are adjusted
// against the closing side.
type CostModel interface {
	Entry(price, notional float64, d Direction, bucket VolatilityBucket) Costs
	Exit(price, notional float64, d Direction, bucket VolatilityBucket) Costs
}

// StandardCostModel is a flat taker-fee model with slippage scaled by the
// volatility bucket.
type StandardCostModel struct {
	TakerFeeRate float64 // fraction of notional per fill, e.g. 0.0005
	SlippageBps  map[VolatilityBucket]float64
}

// NewStandardCostModel returns a cost model with typical futures taker fees
func NewStandardCostModel() *StandardCostModel {
	return &StandardCostModel{
		TakerFeeRate: 0.0005,
		SlippageBps: map[VolatilityBucket]float64{
			VolatilityLow:    1.0,
			VolatilityMedium: 2.5,
			VolatilityHigh:   5.0,
		},
	}
}

// Entry returns the adjusted entry fill
func (m *StandardCostModel) Entry(price, notional float64, d Direction, bucket VolatilityBucket) Costs {
	slip := m.slippage(bucket)
	return Costs{
		// Entering long lifts the offer, entering short hits the bid.
		EffectivePrice: price * (1 + d.Sign()*slip),
		Fees:           notional * m.TakerFeeRate,
	}
}

// Exit returns the adjusted exit fill
func (m *StandardCostModel) Exit(price, notional float64, d Direction, bucket VolatilityBucket) Costs {
	slip := m.slippage(bucket)
	return Costs{
		// Closing a long hits the bid, closing a short lifts the offer.
		EffectivePrice: price * (1 - d.Sign()*slip),
		Fees:           notional * m.TakerFeeRate,
	}
}

func (m *StandardCostModel) slippage(bucket VolatilityBucket) float64 {
	bps, ok := m.SlippageBps[bucket]
	if !ok {
		bps = m.SlippageBps[VolatilityMedium]
	}
	return bps / 10000
}

// FreeCostModel applies no friction at all. Useful for analysis runs where
// raw pattern P&L is wanted.
type FreeCostModel struct{}

func (FreeCostModel) Entry(price, notional float64, d Direction, bucket VolatilityBucket) Costs {
	return Costs{EffectivePrice: price}
}

func (FreeCostModel) Exit(price, notional float64, d Direction, bucket VolatilityBucket) Costs {
	return Costs{EffectivePrice: price}
}
