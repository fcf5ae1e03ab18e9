package binance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MockClient serves canned market data for development and tests
type MockClient struct {
	mu sync.Mutex

	symbols []string
	stats   []VolumeStat
	windows map[string]CandleWindow
	prices  map[string]decimal.Decimal

	universeErr error
	statsErr    error
	candleErrs  map[string]error
	priceErrs   map[string]error

	calls map[string]int
}

// NewMockClient creates an empty mock client
func NewMockClient() *MockClient {
	return &MockClient{
		windows:    make(map[string]CandleWindow),
		prices:     make(map[string]decimal.Decimal),
		candleErrs: make(map[string]error),
		priceErrs:  make(map[string]error),
		calls:      make(map[string]int),
	}
}

// SetUniverse sets the tradable symbols returned by ListTradableSymbols
func (mc *MockClient) SetUniverse(symbols ...string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.symbols = append([]string(nil), symbols...)
}

// AddVolume appends a 24h volume entry
func (mc *MockClient) AddVolume(symbol string, quoteVolume float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.stats = append(mc.stats, VolumeStat{Symbol: symbol, QuoteVolume: decimal.NewFromFloat(quoteVolume)})
}

// SetWindow sets the daily candles returned for a symbol
func (mc *MockClient) SetWindow(symbol string, candles ...Candle) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.windows[symbol] = append(CandleWindow(nil), candles...)
}

// SetPrice sets the live price returned for a symbol
func (mc *MockClient) SetPrice(symbol string, price float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.prices[symbol] = decimal.NewFromFloat(price)
}

// FailUniverse makes ListTradableSymbols fail with err
func (mc *MockClient) FailUniverse(err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.universeErr = err
}

// FailStats makes Fetch24hStats fail with err
func (mc *MockClient) FailStats(err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.statsErr = err
}

// FailCandles makes FetchDailyCandles fail for symbol
func (mc *MockClient) FailCandles(symbol string, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.candleErrs[symbol] = err
}

// FailPrice makes GetCurrentPrice fail for symbol
func (mc *MockClient) FailPrice(symbol string, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.priceErrs[symbol] = err
}

// Calls returns how often a method was invoked
func (mc *MockClient) Calls(method string) int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.calls[method]
}

// ListTradableSymbols returns the configured universe
func (mc *MockClient) ListTradableSymbols(ctx context.Context) ([]string, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.calls["ListTradableSymbols"]++

	if mc.universeErr != nil {
		return nil, upstreamError("exchangeInfo", mc.universeErr)
	}
	return append([]string(nil), mc.symbols...), nil
}

// Fetch24hStats returns the configured volumes in insertion order
func (mc *MockClient) Fetch24hStats(ctx context.Context) ([]VolumeStat, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.calls["Fetch24hStats"]++

	if mc.statsErr != nil {
		return nil, upstreamError("ticker/24hr", mc.statsErr)
	}
	return append([]VolumeStat(nil), mc.stats...), nil
}

// FetchDailyCandles returns the last count configured candles
func (mc *MockClient) FetchDailyCandles(ctx context.Context, symbol string, count int) (CandleWindow, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.calls["FetchDailyCandles"]++

	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Symbol: symbol, Op: "klines", Err: err}
	}
	if err, ok := mc.candleErrs[symbol]; ok {
		return nil, &FetchError{Symbol: symbol, Op: "klines", Err: err}
	}

	window := mc.windows[symbol]
	if len(window) > count {
		window = window[len(window)-count:]
	}
	if len(window) < MinCandles {
		return nil, nil
	}
	return append(CandleWindow(nil), window...), nil
}

// GetCurrentPrice returns the configured price
func (mc *MockClient) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.calls["GetCurrentPrice"]++

	if err, ok := mc.priceErrs[symbol]; ok {
		return decimal.Zero, &FetchError{Symbol: symbol, Op: "ticker/price", Err: err}
	}
	price, ok := mc.prices[symbol]
	if !ok {
		return decimal.Zero, &FetchError{Symbol: symbol, Op: "ticker/price", Err: fmt.Errorf("no price for %s", symbol)}
	}
	return price, nil
}

// NewCandle builds a daily candle from float prices; day is the offset from the Unix epoch
func NewCandle(day int, open, high, low, close float64) Candle {
	openTime := time.Unix(0, 0).UTC().AddDate(0, 0, day)
	return Candle{
		OpenTime:  openTime,
		Open:      decimal.NewFromFloat(open),
		High:      decimal.NewFromFloat(high),
		Low:       decimal.NewFromFloat(low),
		Close:     decimal.NewFromFloat(close),
		Volume:    decimal.NewFromInt(1000),
		CloseTime: openTime.Add(24*time.Hour - time.Millisecond),
	}
}
