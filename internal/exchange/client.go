// Package exchange is the read-only market data client. It speaks the
// public futures REST endpoints; nothing here signs requests or touches
// account state.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"impulse-trading-bot/internal/market"
)

// Config holds client settings
type Config struct {
	BaseURL  string        `json:"base_url"`
	Timeout  time.Duration `json:"timeout"`
	KlineTTL time.Duration `json:"kline_ttl"`
	PriceTTL time.Duration `json:"price_ttl"`
}

// DefaultConfig returns production endpoint defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:  "https://fapi.binance.com",
		Timeout:  10 * time.Second,
		KlineTTL: 30 * time.Second,
		PriceTTL: 3 * time.Second,
	}
}

// Ticker24h represents 24hr ticker price change statistics
type Ticker24h struct {
	Symbol             string  `json:"symbol"`
	LastPrice          float64 `json:"lastPrice,string"`
	PriceChangePercent float64 `json:"priceChangePercent,string"`
	QuoteVolume        float64 `json:"quoteVolume,string"`
}

// Client fetches candles, prices and tickers with a small TTL cache in
// front of the kline and price endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *dataCache
	logger     zerolog.Logger
}

// NewClient creates a market data client
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      newDataCache(cfg.KlineTTL, cfg.PriceTTL),
		logger:     logger.With().Str("component", "exchange").Logger(),
	}
}

// GetCandles fetches up to limit most-recent candles, ascending by open
// time. Fresh cached series are served without a network round trip.
func (c *Client) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]market.Candle, error) {
	if cached, ok := c.cache.getKlines(symbol, timeframe, limit); ok {
		return cached, nil
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", timeframe)
	params.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/fapi/v1/klines?%s", c.baseURL, params.Encode())

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("error fetching klines: %w", err)
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	candles := make([]market.Candle, 0, len(rawKlines))
	for _, raw := range rawKlines {
		if len(raw) < 7 {
			continue
		}
		candles = append(candles, market.Candle{
			OpenTime:  int64(raw[0].(float64)),
			Open:      parseFloat(raw[1]),
			High:      parseFloat(raw[2]),
			Low:       parseFloat(raw[3]),
			Close:     parseFloat(raw[4]),
			Volume:    parseFloat(raw[5]),
			CloseTime: int64(raw[6].(float64)),
		})
	}

	c.cache.setKlines(symbol, timeframe, candles)
	c.logger.Debug().Str("symbol", symbol).Str("timeframe", timeframe).Int("count", len(candles)).Msg("Fetched klines")

	return candles, nil
}

// GetPrice returns the latest traded price for a symbol
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if price, ok := c.cache.getPrice(symbol); ok {
		return price, nil
	}

	endpoint := fmt.Sprintf("%s/fapi/v1/ticker/price?symbol=%s", c.baseURL, symbol)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return 0, fmt.Errorf("error fetching price: %w", err)
	}

	var priceResp struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price,string"`
	}
	if err := json.Unmarshal(body, &priceResp); err != nil {
		return 0, fmt.Errorf("error parsing price: %w", err)
	}

	c.cache.setPrice(symbol, priceResp.Price)
	return priceResp.Price, nil
}

// Get24hTickers fetches 24hr ticker data for all symbols
func (c *Client) Get24hTickers(ctx context.Context) ([]Ticker24h, error) {
	endpoint := fmt.Sprintf("%s/fapi/v1/ticker/24hr", c.baseURL)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("error fetching tickers: %w", err)
	}

	var tickers []Ticker24h
	if err := json.Unmarshal(body, &tickers); err != nil {
		return nil, fmt.Errorf("error parsing tickers: %w", err)
	}

	return tickers, nil
}

// CacheStats returns kline/price cache hit statistics
func (c *Client) CacheStats() (hits, misses int64, hitRate float64) {
	return c.cache.stats()
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error().Int("status", resp.StatusCode).Str("endpoint", endpoint).Msg("Exchange request failed")
		return nil, fmt.Errorf("API error: %s", string(body))
	}

	return body, nil
}

// parseFloat handles the string-encoded numerics in kline arrays
func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	default:
		return 0
	}
}
