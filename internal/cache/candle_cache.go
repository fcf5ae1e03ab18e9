package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"binance-setup-scanner/internal/binance"
)

// DefaultCandleTTL bounds how long a cached daily window is served
const DefaultCandleTTL = 5 * time.Minute

// CachedMarketData decorates a MarketData source with a read-through Redis
// cache of daily candle windows. Every other call goes straight upstream.
// Keys carry the UTC date so a new daily candle never hits yesterday's entry.
type CachedMarketData struct {
	binance.MarketData
	cache *CacheService
	ttl   time.Duration
	now   func() time.Time
}

// NewCachedMarketData wraps inner; a nil cache disables caching
func NewCachedMarketData(inner binance.MarketData, cache *CacheService, ttl time.Duration) *CachedMarketData {
	if ttl <= 0 {
		ttl = DefaultCandleTTL
	}
	return &CachedMarketData{
		MarketData: inner,
		cache:      cache,
		ttl:        ttl,
		now:        time.Now,
	}
}

// FetchDailyCandles checks Redis first, then fetches upstream and stores the window.
// Redis errors never fail the call.
func (c *CachedMarketData) FetchDailyCandles(ctx context.Context, symbol string, count int) (binance.CandleWindow, error) {
	if c.cache == nil {
		return c.MarketData.FetchDailyCandles(ctx, symbol, count)
	}

	key := c.candleKey(symbol, count)

	if b, err := c.cache.Get(ctx, key); err == nil && len(b) > 0 {
		var window binance.CandleWindow
		if err := json.Unmarshal(b, &window); err == nil {
			return window, nil
		}
		_ = c.cache.Delete(ctx, key)
	} else if err != nil && !errors.Is(err, redis.Nil) && !errors.Is(err, ErrCacheUnavailable) {
		c.cache.logger.Debug().Err(err).Str("key", key).Msg("Candle cache read failed, using upstream")
	}

	window, err := c.MarketData.FetchDailyCandles(ctx, symbol, count)
	if err != nil || window == nil {
		return window, err
	}

	if b, err := json.Marshal(window); err == nil {
		_ = c.cache.Set(ctx, key, b, c.ttl)
	}
	return window, nil
}

func (c *CachedMarketData) candleKey(symbol string, count int) string {
	return CandleKey(symbol, count, c.now())
}

// CandleKey builds the cache key for a daily window fetched on day
func CandleKey(symbol string, count int, day time.Time) string {
	return fmt.Sprintf("candles:%s:%s:%d:%s",
		binance.DailyInterval,
		strings.ReplaceAll(symbol, ":", "_"),
		count,
		day.UTC().Format("2006-01-02"),
	)
}

var _ binance.MarketData = (*CachedMarketData)(nil)
