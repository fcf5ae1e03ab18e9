package binance

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents one daily candlestick
type Candle struct {
	OpenTime  time.Time       `json:"openTime"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	CloseTime time.Time       `json:"closeTime"`
}

// CandleWindow is a chronological (oldest first) run of candles for one symbol
type CandleWindow []Candle

// Tail returns the last n candles, or nil when the window is shorter than n
func (w CandleWindow) Tail(n int) CandleWindow {
	if n <= 0 || len(w) < n {
		return nil
	}
	return w[len(w)-n:]
}

// VolumeStat is the 24h quote volume of one symbol
type VolumeStat struct {
	Symbol      string          `json:"symbol"`
	QuoteVolume decimal.Decimal `json:"quoteVolume"`
}

// SymbolInfo represents basic symbol information
type SymbolInfo struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// ExchangeInfo represents the exchangeInfo payload
type ExchangeInfo struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// ticker24hr is the subset of the 24hr statistics payload the scanner reads
type ticker24hr struct {
	Symbol      string           `json:"symbol"`
	QuoteVolume *decimal.Decimal `json:"quoteVolume"`
}

type tickerPrice struct {
	Symbol string           `json:"symbol"`
	Price  *decimal.Decimal `json:"price"`
}
