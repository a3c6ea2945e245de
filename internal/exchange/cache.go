package exchange

import (
	"sync"
	"time"

	"impulse-trading-bot/internal/market"
)

type cachedKlines struct {
	data      []market.Candle
	updatedAt time.Time
}

type cachedPrice struct {
	price     float64
	updatedAt time.Time
}

// dataCache is a TTL cache over kline series and last prices. A zero TTL
// disables the respective cache.
type dataCache struct {
	klineTTL time.Duration
	priceTTL time.Duration

	klines sync.Map // "symbol:interval" -> *cachedKlines
	prices sync.Map // symbol -> *cachedPrice

	statsMu   sync.Mutex
	hitCount  int64
	missCount int64
}

func newDataCache(klineTTL, priceTTL time.Duration) *dataCache {
	return &dataCache{
		klineTTL: klineTTL,
		priceTTL: priceTTL,
	}
}

// getKlines returns a fresh cached series when it can cover the requested
// limit, tail-sliced to the most recent candles.
func (c *dataCache) getKlines(symbol, interval string, limit int) ([]market.Candle, bool) {
	if c.klineTTL <= 0 {
		return nil, false
	}
	if val, ok := c.klines.Load(symbol + ":" + interval); ok {
		cached := val.(*cachedKlines)
		if time.Since(cached.updatedAt) < c.klineTTL && len(cached.data) >= limit {
			c.recordHit()
			if len(cached.data) > limit {
				return cached.data[len(cached.data)-limit:], true
			}
			return cached.data, true
		}
	}
	c.recordMiss()
	return nil, false
}

func (c *dataCache) setKlines(symbol, interval string, candles []market.Candle) {
	if c.klineTTL <= 0 {
		return
	}
	c.klines.Store(symbol+":"+interval, &cachedKlines{
		data:      candles,
		updatedAt: time.Now(),
	})
}

func (c *dataCache) getPrice(symbol string) (float64, bool) {
	if c.priceTTL <= 0 {
		return 0, false
	}
	if val, ok := c.prices.Load(symbol); ok {
		cached := val.(*cachedPrice)
		if time.Since(cached.updatedAt) < c.priceTTL {
			c.recordHit()
			return cached.price, true
		}
	}
	c.recordMiss()
	return 0, false
}

func (c *dataCache) setPrice(symbol string, price float64) {
	if c.priceTTL <= 0 {
		return
	}
	c.prices.Store(symbol, &cachedPrice{
		price:     price,
		updatedAt: time.Now(),
	})
}

func (c *dataCache) recordHit() {
	c.statsMu.Lock()
	c.hitCount++
	c.statsMu.Unlock()
}

func (c *dataCache) recordMiss() {
	c.statsMu.Lock()
	c.missCount++
	c.statsMu.Unlock()
}

func (c *dataCache) stats() (hits, misses int64, hitRate float64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	hits = c.hitCount
	misses = c.missCount
	total := hits + misses
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	return
}
