package scanner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-setup-scanner/config"
	"binance-setup-scanner/internal/binance"
	"binance-setup-scanner/internal/events"
	"binance-setup-scanner/internal/patterns"
)

func testConfig() config.ScannerConfig {
	return config.ScannerConfig{
		Mode:          config.ModeContinuationReversal,
		Universe:      config.UniverseExchangeInfo,
		CandleLimit:   4,
		Workers:       1,
		UniverseRetry: config.RetryConfig{MaxAttempts: 3, Delay: time.Millisecond},
		CandleRetry:   config.RetryConfig{MaxAttempts: 1},
	}
}

// Candle fixtures as base, prev, today
func bullishWindow() []binance.Candle {
	return []binance.Candle{
		binance.NewCandle(0, 100, 110, 90, 105),
		binance.NewCandle(1, 105, 115, 100, 112),
		binance.NewCandle(2, 112, 120, 111, 118),
	}
}

func bearishReversalWindow() []binance.Candle {
	return []binance.Candle{
		binance.NewCandle(0, 100, 110, 90, 100),
		binance.NewCandle(1, 100, 112, 95, 105),
		binance.NewCandle(2, 105, 106, 99, 100),
	}
}

func flatWindow() []binance.Candle {
	return []binance.Candle{
		binance.NewCandle(0, 100, 110, 90, 100),
		binance.NewCandle(1, 100, 105, 95, 100),
		binance.NewCandle(2, 100, 104, 96, 101),
	}
}

func newMock() *binance.MockClient {
	mc := binance.NewMockClient()
	mc.SetUniverse("AAAUSDT", "BBBUSDT", "CCCUSDT", "DDDUSDT")
	mc.AddVolume("BBBUSDT", 2_000_000)
	mc.AddVolume("AAAUSDT", 5_000_000)
	mc.AddVolume("CCCUSDT", 1_000_000)
	mc.AddVolume("DDDUSDT", 3_000_000)
	mc.AddVolume("ETHBTC", 9_000_000)
	mc.SetWindow("AAAUSDT", bullishWindow()...)
	mc.SetWindow("BBBUSDT", bullishWindow()...)
	mc.SetWindow("CCCUSDT", bearishReversalWindow()...)
	mc.SetWindow("DDDUSDT", flatWindow()...)
	return mc
}

func entrySymbols(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = fmt.Sprintf("%d. %s", e.Rank, e.Symbol)
	}
	return out
}

func TestRunBucketsInRankOrder(t *testing.T) {
	mc := newMock()
	sc := NewScanner(mc, testConfig(), "USDT", zerolog.Nop())

	result, err := sc.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, result.ScanID)
	assert.Equal(t, 4, result.Universe)
	assert.Equal(t, []string{"1. AAAUSDT", "3. BBBUSDT"}, entrySymbols(result.Bucket(patterns.ContinuationBullish)))
	assert.Equal(t, []string{"4. CCCUSDT"}, entrySymbols(result.Bucket(patterns.ReversalBearish)))
	assert.Empty(t, result.Bucket(patterns.ContinuationBearish))
	assert.Empty(t, result.Bucket(patterns.ReversalBullish))

	require.Len(t, result.Outcomes, 4)
	assert.Equal(t, "DDDUSDT", result.Outcomes[1].Symbol)
	assert.Equal(t, SymbolClassified, result.Outcomes[1].State)
	assert.Empty(t, result.Outcomes[1].Matches)
	assert.Equal(t, 4, result.Counts[SymbolClassified])
	assert.Same(t, result, sc.GetLastResult())
}

func TestRunUniverseFailureEscalates(t *testing.T) {
	mc := newMock()
	mc.FailUniverse(errors.New("connection refused"))
	sc := NewScanner(mc, testConfig(), "USDT", zerolog.Nop())

	result, err := sc.Run(context.Background())

	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, binance.ErrUpstreamUnavailable)
	assert.Equal(t, 3, mc.Calls("ListTradableSymbols"))
	assert.Zero(t, mc.Calls("Fetch24hStats"))
	assert.Zero(t, mc.Calls("FetchDailyCandles"))
}

func TestRunStatsFailureEscalates(t *testing.T) {
	mc := newMock()
	mc.FailStats(errors.New("503"))
	sc := NewScanner(mc, testConfig(), "USDT", zerolog.Nop())

	_, err := sc.Run(context.Background())

	assert.ErrorIs(t, err, binance.ErrUpstreamUnavailable)
	assert.Equal(t, 3, mc.Calls("Fetch24hStats"))
	assert.Zero(t, mc.Calls("FetchDailyCandles"))
}

func TestRunEmptyUniverseIsUpstreamFailure(t *testing.T) {
	mc := binance.NewMockClient()
	sc := NewScanner(mc, testConfig(), "USDT", zerolog.Nop())

	_, err := sc.Run(context.Background())

	assert.ErrorIs(t, err, binance.ErrUpstreamUnavailable)
}

func TestRunIsolatesSymbolFailures(t *testing.T) {
	mc := newMock()
	mc.FailCandles("AAAUSDT", errors.New("timeout"))
	sc := NewScanner(mc, testConfig(), "USDT", zerolog.Nop())

	result, err := sc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SymbolFailed, result.Outcomes[0].State)
	assert.Contains(t, result.Outcomes[0].Error, "timeout")
	assert.Equal(t, []string{"3. BBBUSDT"}, entrySymbols(result.Bucket(patterns.ContinuationBullish)))
	assert.Equal(t, 1, result.Counts[SymbolFailed])
	assert.Equal(t, 4, mc.Calls("FetchDailyCandles"))
}

func TestRunSkipsShortHistory(t *testing.T) {
	mc := newMock()
	mc.SetWindow("AAAUSDT", bullishWindow()[1:]...)
	mc.SetWindow("BBBUSDT", bullishWindow()[2:]...)
	sc := NewScanner(mc, testConfig(), "USDT", zerolog.Nop())

	result, err := sc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SymbolSkipped, result.Outcomes[0].State)
	assert.Equal(t, SymbolSkipped, result.Outcomes[2].State)
	assert.Empty(t, result.Bucket(patterns.ContinuationBullish))
	assert.Equal(t, 2, result.Counts[SymbolSkipped])
}

func TestRunExclusionsAndTopN(t *testing.T) {
	mc := newMock()
	cfg := testConfig()
	cfg.TopN = 2
	sc := NewScanner(mc, cfg, "USDT", zerolog.Nop())
	sc.Exclude("AAAUSDT")

	result, err := sc.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, "DDDUSDT", result.Outcomes[0].Symbol)
	assert.Equal(t, 1, result.Outcomes[0].Rank)
	assert.Equal(t, []string{"2. BBBUSDT"}, entrySymbols(result.Bucket(patterns.ContinuationBullish)))
	assert.Equal(t, 2, mc.Calls("FetchDailyCandles"))
}

func TestConcurrentMatchesSequential(t *testing.T) {
	build := func() *binance.MockClient {
		mc := binance.NewMockClient()
		var universe []string
		for i := 0; i < 40; i++ {
			sym := fmt.Sprintf("S%02dUSDT", i)
			universe = append(universe, sym)
			mc.AddVolume(sym, float64(1000+i%7))
			switch i % 3 {
			case 0:
				mc.SetWindow(sym, bullishWindow()...)
			case 1:
				mc.SetWindow(sym, bearishReversalWindow()...)
			default:
				mc.SetWindow(sym, flatWindow()...)
			}
		}
		mc.SetUniverse(universe...)
		return mc
	}

	sequential, err := NewScanner(build(), testConfig(), "USDT", zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Workers = 8
	concurrent, err := NewScanner(build(), cfg, "USDT", zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)

	for _, c := range sequential.Categories {
		assert.Equal(t, sequential.Bucket(c), concurrent.Bucket(c), "bucket %s", c)
	}
}

func TestRunTapModeWithLivePrice(t *testing.T) {
	mc := binance.NewMockClient()
	mc.AddVolume("BTCUSDT", 900)
	mc.AddVolume("ETHUSDT", 800)
	mc.AddVolume("SOLUSDT", 700)
	mc.AddVolume("ETHBTC", 10_000)
	mc.SetWindow("BTCUSDT", binance.NewCandle(0, 100, 110, 90, 105), binance.NewCandle(1, 105, 108, 100, 107))
	mc.SetWindow("ETHUSDT", binance.NewCandle(0, 100, 110, 90, 105), binance.NewCandle(1, 105, 108, 100, 101))
	mc.SetWindow("SOLUSDT", binance.NewCandle(0, 100, 110, 90, 105), binance.NewCandle(1, 105, 108, 100, 101))
	mc.SetPrice("BTCUSDT", 111)
	mc.SetPrice("ETHUSDT", 90)
	mc.SetPrice("SOLUSDT", 100)

	cfg := testConfig()
	cfg.Mode = config.ModeTap
	cfg.Universe = config.UniverseTicker
	cfg.CandleLimit = 2
	cfg.TopN = 2
	cfg.UseLivePrice = true
	sc := NewScanner(mc, cfg, "USDT", zerolog.Nop())

	result, err := sc.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, mc.Calls("ListTradableSymbols"))
	assert.Equal(t, 2, mc.Calls("GetCurrentPrice"))

	highs := result.Bucket(patterns.TappedPreviousHigh)
	require.Len(t, highs, 1)
	assert.Equal(t, "BTCUSDT", highs[0].Symbol)
	assert.Equal(t, "111", highs[0].Price.String())
	assert.Equal(t, "110", highs[0].Level.String())

	lows := result.Bucket(patterns.TappedPreviousLow)
	require.Len(t, lows, 1)
	assert.Equal(t, "ETHUSDT", lows[0].Symbol)
}

func TestRunLivePriceFailure(t *testing.T) {
	mc := binance.NewMockClient()
	mc.AddVolume("BTCUSDT", 900)
	mc.SetWindow("BTCUSDT", binance.NewCandle(0, 100, 110, 90, 105), binance.NewCandle(1, 105, 108, 100, 107))
	mc.FailPrice("BTCUSDT", errors.New("boom"))

	cfg := testConfig()
	cfg.Mode = config.ModeTap
	cfg.Universe = config.UniverseTicker
	cfg.CandleLimit = 2
	cfg.UseLivePrice = true

	result, err := NewScanner(mc, cfg, "USDT", zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SymbolFailed, result.Outcomes[0].State)
	assert.True(t, result.Empty())
}

func TestRunCancelledReturnsPartialResult(t *testing.T) {
	mc := newMock()
	cfg := testConfig()
	cfg.PaceInterval = time.Hour
	sc := NewScanner(mc, cfg, "USDT", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var states []RunState
	sc.OnState(func(_ string, s RunState) {
		states = append(states, s)
		if s == StateScanning {
			time.AfterFunc(50*time.Millisecond, cancel)
		}
	})

	result, err := sc.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []RunState{StateRanking, StateScanning}, states)
	assert.Equal(t, SymbolClassified, result.Outcomes[0].State)
	for _, o := range result.Outcomes[1:] {
		assert.Equal(t, SymbolFailed, o.State, o.Symbol)
	}
}

func TestRunPacesCalls(t *testing.T) {
	mc := newMock()
	cfg := testConfig()
	cfg.PaceInterval = 20 * time.Millisecond

	start := time.Now()
	_, err := NewScanner(mc, cfg, "USDT", zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)

	// first call is free, the other three wait one interval each
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestRunPublishesEvents(t *testing.T) {
	mc := newMock()
	bus := events.NewEventBus()
	done := make(chan events.Event, 1)
	bus.Subscribe(events.EventScanCompleted, func(e events.Event) { done <- e })

	sc := NewScanner(mc, testConfig(), "USDT", zerolog.Nop())
	sc.SetEventBus(bus)

	result, err := sc.Run(context.Background())
	require.NoError(t, err)

	select {
	case e := <-done:
		assert.Equal(t, result.ScanID, e.ScanID)
		assert.Equal(t, 4, e.Data["scanned"])
	case <-time.After(2 * time.Second):
		t.Fatal("scan completed event not published")
	}
}

func TestBreakerTripsOnRepeatedFailures(t *testing.T) {
	mc := newMock()
	for _, s := range []string{"AAAUSDT", "DDDUSDT"} {
		mc.FailCandles(s, errors.New("502"))
	}
	cfg := testConfig()
	cfg.BreakerThreshold = 2
	cfg.BreakerCooldown = 10 * time.Millisecond
	sc := NewScanner(mc, cfg, "USDT", zerolog.Nop())

	result, err := sc.Run(context.Background())
	require.NoError(t, err)

	// every symbol is still attempted after the cooldown
	assert.Equal(t, 4, mc.Calls("FetchDailyCandles"))
	assert.Equal(t, 2, result.Counts[SymbolFailed])
	assert.Equal(t, 1, sc.Breaker().GetStats()["total_trips"])
}
