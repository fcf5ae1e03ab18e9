package binance

import (
	"context"

	"github.com/shopspring/decimal"
)

// MarketData defines the read-only market data operations the scanner needs
type MarketData interface {
	ListTradableSymbols(ctx context.Context) ([]string, error)
	Fetch24hStats(ctx context.Context) ([]VolumeStat, error)
	FetchDailyCandles(ctx context.Context, symbol string, count int) (CandleWindow, error)
	GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Ensure both Client and MockClient implement MarketData
var _ MarketData = (*Client)(nil)
var _ MarketData = (*MockClient)(nil)
