package binance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"binance-setup-scanner/config"
	"binance-setup-scanner/internal/logging"
)

const (
	// DailyInterval is the only kline interval the scanner reads
	DailyInterval = "1d"
	// MinCandles is the shortest window FetchDailyCandles returns
	MinCandles = 2
)

type Client struct {
	baseURL    string
	quoteAsset string
	httpClient *http.Client
	limiter    *RateLimiter
	logger     zerolog.Logger
}

// NewClient creates a market data client. A nil limiter disables weight tracking.
func NewClient(cfg config.BinanceConfig, limiter *RateLimiter, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	quote := strings.ToUpper(cfg.QuoteAsset)
	if quote == "" {
		quote = "USDT"
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		quoteAsset: quote,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		logger:     logger.With().Str("component", "BinanceClient").Logger(),
	}
}

// GetExchangeInfo fetches the raw exchangeInfo payload
func (c *Client) GetExchangeInfo(ctx context.Context) (*ExchangeInfo, error) {
	body, err := c.get(ctx, "/api/v3/exchangeInfo", nil)
	if err != nil {
		return nil, upstreamError("exchangeInfo", err)
	}

	var payload struct {
		Symbols *[]SymbolInfo `json:"symbols"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, upstreamError("exchangeInfo", fmt.Errorf("%w: %v", ErrMalformedPayload, err))
	}
	if payload.Symbols == nil {
		return nil, upstreamError("exchangeInfo", fmt.Errorf("%w: missing symbols field", ErrMalformedPayload))
	}

	return &ExchangeInfo{Symbols: *payload.Symbols}, nil
}

// ListTradableSymbols returns TRADING symbols quoted in the configured asset, in payload order
func (c *Client) ListTradableSymbols(ctx context.Context) ([]string, error) {
	info, err := c.GetExchangeInfo(ctx)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status == "TRADING" && s.QuoteAsset == c.quoteAsset {
			symbols = append(symbols, s.Symbol)
		}
	}

	c.logger.Debug().Int("symbols", len(symbols)).Int("listed", len(info.Symbols)).Msg("Fetched tradable symbols")
	return symbols, nil
}

// Fetch24hStats returns the quote volume of every symbol in payload order
func (c *Client) Fetch24hStats(ctx context.Context) ([]VolumeStat, error) {
	body, err := c.get(ctx, "/api/v3/ticker/24hr", nil)
	if err != nil {
		return nil, upstreamError("ticker/24hr", err)
	}

	var tickers []ticker24hr
	if err := json.Unmarshal(body, &tickers); err != nil {
		return nil, upstreamError("ticker/24hr", fmt.Errorf("%w: %v", ErrMalformedPayload, err))
	}

	stats := make([]VolumeStat, 0, len(tickers))
	for i, t := range tickers {
		if t.Symbol == "" || t.QuoteVolume == nil {
			return nil, upstreamError("ticker/24hr", fmt.Errorf("%w: entry %d lacks symbol or quoteVolume", ErrMalformedPayload, i))
		}
		stats = append(stats, VolumeStat{Symbol: t.Symbol, QuoteVolume: *t.QuoteVolume})
	}

	return stats, nil
}

// FetchDailyCandles fetches up to count daily candles, oldest first.
// A window shorter than MinCandles is returned as nil with a nil error.
func (c *Client) FetchDailyCandles(ctx context.Context, symbol string, count int) (CandleWindow, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", DailyInterval)
	params.Set("limit", strconv.Itoa(count))

	body, err := c.get(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, &FetchError{Symbol: symbol, Op: "klines", Err: err}
	}

	window, err := parseKlines(body)
	if err != nil {
		return nil, &FetchError{Symbol: symbol, Op: "klines", Err: err}
	}

	if len(window) < MinCandles {
		return nil, nil
	}
	return window, nil
}

// GetCurrentPrice fetches the latest traded price
func (c *Client) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get(ctx, "/api/v3/ticker/price", params)
	if err != nil {
		return decimal.Zero, &FetchError{Symbol: symbol, Op: "ticker/price", Err: err}
	}

	var resp tickerPrice
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, &FetchError{Symbol: symbol, Op: "ticker/price", Err: fmt.Errorf("%w: %v", ErrMalformedPayload, err)}
	}
	if resp.Price == nil {
		return decimal.Zero, &FetchError{Symbol: symbol, Op: "ticker/price", Err: fmt.Errorf("%w: missing price", ErrMalformedPayload)}
	}

	return *resp.Price, nil
}

// get performs an unauthenticated GET with weight accounting
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error requesting %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if c.limiter != nil {
		if used := resp.Header.Get("X-MBX-USED-WEIGHT-1M"); used != "" {
			if weight, err := strconv.Atoi(used); err == nil {
				c.limiter.UpdateFromHeaders(weight)
			}
		}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot {
		rlErr := &RateLimitError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			BanUntil:   ParseBanUntilFromError(string(body)),
			Body:       string(body),
		}
		if c.limiter != nil {
			c.limiter.RecordRateLimitError(rlErr.Until(time.Now()))
		}
		apiLog := logging.BinanceAPIContext(c.logger, endpoint)
		apiLog.Warn().
			Int("status", resp.StatusCode).
			Time("until", rlErr.Until(time.Now())).
			Msg("Rate limited by exchange")
		return nil, rlErr
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if c.limiter != nil {
		c.limiter.RecordRequest()
		apiLog := logging.BinanceAPIContext(c.logger, endpoint)
		apiLog.Trace().Int("used_weight", c.limiter.UsedWeight()).Msg("Request done")
	}
	return body, nil
}

// parseKlines decodes the array-of-arrays kline payload
func parseKlines(body []byte) (CandleWindow, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var rows [][]interface{}
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	window := make(CandleWindow, 0, len(rows))
	for i, row := range rows {
		candle, err := parseKlineRow(row)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformedPayload, i, err)
		}
		window = append(window, candle)
	}
	return window, nil
}

func parseKlineRow(row []interface{}) (Candle, error) {
	if len(row) < 6 {
		return Candle{}, fmt.Errorf("expected at least 6 fields, got %d", len(row))
	}

	var (
		candle Candle
		err    error
	)
	if candle.OpenTime, err = parseMillis(row[0]); err != nil {
		return Candle{}, fmt.Errorf("open time: %w", err)
	}
	fields := []*decimal.Decimal{&candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.Volume}
	for i, dst := range fields {
		if *dst, err = parseDecimal(row[i+1]); err != nil {
			return Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
	}
	if len(row) > 6 {
		if candle.CloseTime, err = parseMillis(row[6]); err != nil {
			return Candle{}, fmt.Errorf("close time: %w", err)
		}
	}
	return candle, nil
}

func parseDecimal(val interface{}) (decimal.Decimal, error) {
	switch v := val.(type) {
	case string:
		return decimal.NewFromString(v)
	case json.Number:
		return decimal.NewFromString(v.String())
	default:
		return decimal.Zero, fmt.Errorf("unexpected type %T", val)
	}
}

func parseMillis(val interface{}) (time.Time, error) {
	n, ok := val.(json.Number)
	if !ok {
		return time.Time{}, fmt.Errorf("unexpected type %T", val)
	}
	ms, err := n.Int64()
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
