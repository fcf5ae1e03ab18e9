package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-setup-scanner/config"
	"binance-setup-scanner/internal/binance"
)

var fixedDay = time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

func newCached(t *testing.T, inner binance.MarketData) (*CachedMarketData, redismock.ClientMock) {
	t.Helper()
	rdb, mock := redismock.NewClientMock()
	t.Cleanup(func() { _ = rdb.Close() })

	cs := NewCacheServiceWithClient(rdb, config.RedisConfig{Enabled: true}, zerolog.Nop())
	c := NewCachedMarketData(inner, cs, time.Minute)
	c.now = func() time.Time { return fixedDay }
	return c, mock
}

func sampleWindow() binance.CandleWindow {
	return binance.CandleWindow{
		binance.NewCandle(0, 100, 110, 90, 105),
		binance.NewCandle(1, 105, 115, 100, 112),
		binance.NewCandle(2, 112, 120, 111, 118),
	}
}

func TestCandleKey(t *testing.T) {
	assert.Equal(t, "candles:1d:BTCUSDT:4:2024-03-05", CandleKey("BTCUSDT", 4, fixedDay))
	assert.Equal(t, "candles:1d:A_B:2:2024-03-05", CandleKey("A:B", 2, fixedDay.In(time.FixedZone("x", 3600))))
}

func TestCacheHitSkipsUpstream(t *testing.T) {
	inner := binance.NewMockClient()
	c, mock := newCached(t, inner)

	b, err := json.Marshal(sampleWindow())
	require.NoError(t, err)
	mock.ExpectGet("candles:1d:BTCUSDT:4:2024-03-05").SetVal(string(b))

	window, err := c.FetchDailyCandles(context.Background(), "BTCUSDT", 4)
	require.NoError(t, err)

	require.Len(t, window, 3)
	assert.Equal(t, "118", window[2].Close.String())
	assert.Zero(t, inner.Calls("FetchDailyCandles"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheMissStoresWindow(t *testing.T) {
	inner := binance.NewMockClient()
	inner.SetWindow("BTCUSDT", sampleWindow()...)
	c, mock := newCached(t, inner)

	b, err := json.Marshal(sampleWindow())
	require.NoError(t, err)
	mock.ExpectGet("candles:1d:BTCUSDT:4:2024-03-05").RedisNil()
	mock.ExpectSet("candles:1d:BTCUSDT:4:2024-03-05", string(b), time.Minute).SetVal("OK")

	window, err := c.FetchDailyCandles(context.Background(), "BTCUSDT", 4)
	require.NoError(t, err)

	assert.Len(t, window, 3)
	assert.Equal(t, 1, inner.Calls("FetchDailyCandles"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheErrorDegradesToUpstream(t *testing.T) {
	inner := binance.NewMockClient()
	inner.SetWindow("BTCUSDT", sampleWindow()...)
	c, mock := newCached(t, inner)

	mock.ExpectGet("candles:1d:BTCUSDT:4:2024-03-05").SetErr(errors.New("connection reset"))
	mock.ExpectSet("candles:1d:BTCUSDT:4:2024-03-05", mustJSON(t, sampleWindow()), time.Minute).SetErr(errors.New("connection reset"))

	window, err := c.FetchDailyCandles(context.Background(), "BTCUSDT", 4)

	require.NoError(t, err)
	assert.Len(t, window, 3)
	assert.Equal(t, 2, c.cache.GetStats().FailureCount)
}

func TestCorruptedEntryIsReplaced(t *testing.T) {
	inner := binance.NewMockClient()
	inner.SetWindow("BTCUSDT", sampleWindow()...)
	c, mock := newCached(t, inner)

	mock.ExpectGet("candles:1d:BTCUSDT:4:2024-03-05").SetVal("not json")
	mock.ExpectDel("candles:1d:BTCUSDT:4:2024-03-05").SetVal(1)
	mock.ExpectSet("candles:1d:BTCUSDT:4:2024-03-05", mustJSON(t, sampleWindow()), time.Minute).SetVal("OK")

	_, err := c.FetchDailyCandles(context.Background(), "BTCUSDT", 4)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpstreamErrorsAreNotCached(t *testing.T) {
	inner := binance.NewMockClient()
	inner.FailCandles("BTCUSDT", errors.New("timeout"))
	c, mock := newCached(t, inner)

	mock.ExpectGet("candles:1d:BTCUSDT:4:2024-03-05").RedisNil()

	_, err := c.FetchDailyCandles(context.Background(), "BTCUSDT", 4)

	assert.ErrorIs(t, err, binance.ErrFetchFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnhealthyCacheIsBypassed(t *testing.T) {
	inner := binance.NewMockClient()
	inner.SetWindow("BTCUSDT", sampleWindow()...)
	c, _ := newCached(t, inner)
	for i := 0; i < 3; i++ {
		c.cache.recordFailure()
	}
	require.False(t, c.cache.IsHealthy())

	window, err := c.FetchDailyCandles(context.Background(), "BTCUSDT", 4)

	require.NoError(t, err)
	assert.Len(t, window, 3)
}

func TestNilCachePassesThrough(t *testing.T) {
	inner := binance.NewMockClient()
	inner.SetWindow("ETHUSDT", sampleWindow()...)
	c := NewCachedMarketData(inner, nil, 0)

	window, err := c.FetchDailyCandles(context.Background(), "ETHUSDT", 4)

	require.NoError(t, err)
	assert.Len(t, window, 3)
	assert.Equal(t, DefaultCandleTTL, c.ttl)
}

func TestNewCacheServiceDisabled(t *testing.T) {
	_, err := NewCacheService(config.RedisConfig{Enabled: false}, zerolog.Nop())
	assert.Error(t, err)
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
