package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"binance-setup-scanner/config"
	"binance-setup-scanner/internal/binance"
	"binance-setup-scanner/internal/circuit"
	"binance-setup-scanner/internal/events"
	"binance-setup-scanner/internal/logging"
	"binance-setup-scanner/internal/patterns"
	"binance-setup-scanner/internal/retry"
	"binance-setup-scanner/internal/screener"
)

const tracerName = "binance-setup-scanner/scanner"

// StateFunc observes run state transitions
type StateFunc func(scanID string, state RunState)

// Scanner ranks the universe and classifies each symbol's daily candles
type Scanner struct {
	client        binance.MarketData
	classifier    patterns.Classifier
	ranker        *screener.Ranker
	config        config.ScannerConfig
	quoteAsset    string
	pacer         *rate.Limiter
	universeRetry retry.Policy
	candleRetry   retry.Policy
	breaker       *circuit.CircuitBreaker
	eventBus      *events.EventBus
	onState       StateFunc
	tracer        trace.Tracer
	logger        zerolog.Logger

	mu         sync.RWMutex
	lastResult *ScanResult
}

// ClassifierForMode returns the classifier for a scanner mode
func ClassifierForMode(mode string) patterns.Classifier {
	if mode == config.ModeTap {
		return patterns.NewTapDetector()
	}
	return patterns.NewPatternDetector()
}

// NewScanner creates a new scanner instance
func NewScanner(client binance.MarketData, cfg config.ScannerConfig, quoteAsset string, logger zerolog.Logger) *Scanner {
	pacer := rate.NewLimiter(rate.Inf, 1)
	if cfg.PaceInterval > 0 {
		pacer = rate.NewLimiter(rate.Every(cfg.PaceInterval), 1)
	}

	breaker := circuit.NewCircuitBreaker(&circuit.CircuitBreakerConfig{
		Enabled:                cfg.BreakerThreshold > 0,
		MaxConsecutiveFailures: cfg.BreakerThreshold,
		Cooldown:               cfg.BreakerCooldown,
	})

	return &Scanner{
		client:        client,
		classifier:    ClassifierForMode(cfg.Mode),
		ranker:        screener.NewRanker(cfg.TopN, cfg.ExcludeSymbols),
		config:        cfg,
		quoteAsset:    quoteAsset,
		pacer:         pacer,
		universeRetry: retry.FromConfig(cfg.UniverseRetry),
		candleRetry:   retry.FromConfig(cfg.CandleRetry),
		breaker:       breaker,
		tracer:        otel.Tracer(tracerName),
		logger:        logging.WithComponent(logger, "Scanner"),
	}
}

// SetEventBus sets where run events are published
func (sc *Scanner) SetEventBus(bus *events.EventBus) {
	sc.eventBus = bus
	if bus != nil {
		sc.breaker.SetPublisher(bus)
	}
}

// OnState registers a run state observer
func (sc *Scanner) OnState(fn StateFunc) {
	sc.onState = fn
}

// Exclude adds symbols that are never ranked or scanned
func (sc *Scanner) Exclude(symbols ...string) {
	sc.ranker.Exclude(symbols...)
}

// SetStoredExclusions replaces the store-loaded exclusions for the next run
func (sc *Scanner) SetStoredExclusions(symbols []string) {
	sc.ranker.SetStoredExclusions(symbols)
}

// Excluded returns the configured and stored exclusions
func (sc *Scanner) Excluded() []string {
	return sc.ranker.Excluded()
}

// Classifier returns the active classifier
func (sc *Scanner) Classifier() patterns.Classifier {
	return sc.classifier
}

// Breaker returns the upstream circuit breaker
func (sc *Scanner) Breaker() *circuit.CircuitBreaker {
	return sc.breaker
}

// Run executes one scan: rank the universe, then fetch and classify every
// ranked symbol in order. A ranking failure is returned as an error matching
// binance.ErrUpstreamUnavailable and no candle is fetched. Per-symbol failures
// never abort the run; cancellation returns a partial result.
func (sc *Scanner) Run(ctx context.Context) (*ScanResult, error) {
	scanID := uuid.NewString()
	ctx, logger := logging.WithScanContext(logging.NewContext(ctx, sc.logger), scanID)

	ctx, span := sc.tracer.Start(ctx, "scan.run", trace.WithAttributes(
		attribute.String("scan.id", scanID),
		attribute.String("scan.mode", sc.config.Mode),
	))
	defer span.End()

	result := newScanResult(scanID, sc.config.Mode, sc.config.TopN, sc.classifier.Categories())

	sc.setState(scanID, StateRanking)
	logger.Info().Str("mode", sc.config.Mode).Msg("Ranking symbol universe")

	ranked, universe, err := sc.rank(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ranking failed")
		logger.Error().Err(err).Msg("Failed to rank symbols")
		return nil, err
	}
	result.Universe = universe
	span.SetAttributes(attribute.Int("scan.ranked", len(ranked)))

	sc.setState(scanID, StateScanning)
	logger.Info().Int("universe", universe).Int("ranked", len(ranked)).Msg("Scanning ranked symbols")

	result.aggregate(sc.scanAll(ctx, logger, ranked))
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	logger.Info().
		Int("classified", result.Counts[SymbolClassified]).
		Int("skipped", result.Counts[SymbolSkipped]).
		Int("failed", result.Counts[SymbolFailed]).
		Dur("duration", result.Duration).
		Msg("Scan complete")

	if sc.eventBus != nil {
		sc.eventBus.PublishScanCompleted(scanID, len(ranked), result.BucketSizes(), result.Duration)
	}

	sc.mu.Lock()
	sc.lastResult = result
	sc.mu.Unlock()

	return result, nil
}

// rank fetches the universe and 24h volumes under the retry policy
func (sc *Scanner) rank(ctx context.Context) ([]screener.SymbolRank, int, error) {
	ctx, span := sc.tracer.Start(ctx, "scan.rank")
	defer span.End()
	logger := logging.FromContext(ctx)

	var symbols []string
	if sc.config.Universe != config.UniverseTicker {
		var err error
		symbols, err = retry.Value(ctx, sc.universeRetry, "exchangeInfo", logger, sc.client.ListTradableSymbols)
		if err != nil {
			return nil, 0, asUpstream(err)
		}
	}

	stats, err := retry.Value(ctx, sc.universeRetry, "ticker/24hr", logger, sc.client.Fetch24hStats)
	if err != nil {
		return nil, 0, asUpstream(err)
	}

	if sc.config.Universe == config.UniverseTicker {
		symbols = screener.SymbolsWithQuote(stats, sc.quoteAsset)
	}
	if len(symbols) == 0 {
		return nil, 0, fmt.Errorf("%w: no tradable %s symbols", binance.ErrUpstreamUnavailable, sc.quoteAsset)
	}

	return sc.ranker.Rank(symbols, stats), len(symbols), nil
}

func asUpstream(err error) error {
	if errors.Is(err, binance.ErrUpstreamUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", binance.ErrUpstreamUnavailable, err)
}

type indexedOutcome struct {
	index   int
	outcome SymbolOutcome
}

// scanAll runs the worker pool and places every outcome at its rank index
func (sc *Scanner) scanAll(ctx context.Context, logger zerolog.Logger, ranked []screener.SymbolRank) []SymbolOutcome {
	outcomes := make([]SymbolOutcome, len(ranked))
	for i, sr := range ranked {
		outcomes[i] = SymbolOutcome{Rank: sr.Rank, Symbol: sr.Symbol, State: SymbolPending}
	}

	workers := sc.config.Workers
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int)
	results := make(chan indexedOutcome, workers)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results <- indexedOutcome{index: i, outcome: sc.scanSymbol(ctx, logger, ranked[i])}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range ranked {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		outcomes[res.index] = res.outcome
		sc.publishOutcome(logging.ScanIDFromContext(ctx), res.outcome)
	}

	if err := ctx.Err(); err != nil {
		for i := range outcomes {
			if outcomes[i].State == SymbolPending {
				outcomes[i].State = SymbolFailed
				outcomes[i].Error = err.Error()
			}
		}
		logger.Warn().Err(err).Msg("Scan cancelled, remaining symbols marked failed")
	}
	return outcomes
}

// scanSymbol fetches and classifies one symbol
func (sc *Scanner) scanSymbol(ctx context.Context, logger zerolog.Logger, sr screener.SymbolRank) SymbolOutcome {
	ctx, span := sc.tracer.Start(ctx, "scan.symbol", trace.WithAttributes(
		attribute.String("symbol", sr.Symbol),
		attribute.Int("rank", sr.Rank),
	))
	defer span.End()

	log := logging.SymbolContext(logger, sr.Rank, sr.Symbol)
	outcome := SymbolOutcome{Rank: sr.Rank, Symbol: sr.Symbol, State: SymbolPending}

	fail := func(err error) SymbolOutcome {
		span.RecordError(err)
		span.SetStatus(codes.Error, "symbol failed")
		log.Warn().Err(err).Msg("Skipping symbol")
		outcome.State = SymbolFailed
		outcome.Error = err.Error()
		return outcome
	}

	if err := sc.breaker.Wait(ctx.Done()); err != nil {
		return fail(err)
	}

	window, err := retry.Value(ctx, sc.candleRetry, "klines "+sr.Symbol, log, func(ctx context.Context) (binance.CandleWindow, error) {
		if err := sc.pacer.Wait(ctx); err != nil {
			return nil, retry.Permanent(err)
		}
		return sc.client.FetchDailyCandles(ctx, sr.Symbol, sc.config.CandleLimit)
	})
	if err != nil {
		if ctx.Err() == nil {
			sc.breaker.RecordFailure()
		}
		return fail(err)
	}
	sc.breaker.RecordSuccess()

	if len(window) < sc.classifier.WindowSize() {
		log.Debug().Int("candles", len(window)).Err(ErrInsufficientHistory).Msg("Skipping symbol")
		outcome.State = SymbolSkipped
		outcome.Error = ErrInsufficientHistory.Error()
		return outcome
	}
	outcome.State = SymbolFetched

	if sc.config.UseLivePrice {
		if err := sc.pacer.Wait(ctx); err != nil {
			return fail(err)
		}
		price, err := sc.client.GetCurrentPrice(ctx, sr.Symbol)
		if err != nil {
			return fail(err)
		}
		window = withLivePrice(window, price)
	}

	outcome.Matches = sc.classifier.Classify(window)
	outcome.State = SymbolClassified
	span.SetAttributes(attribute.Int("matches", len(outcome.Matches)))

	if len(outcome.Matches) > 0 {
		log.Info().Strs("classifications", outcome.Classifications()).Msg("Setup found")
	}
	return outcome
}

// withLivePrice replaces the latest candle with a point candle at price
func withLivePrice(window binance.CandleWindow, price decimal.Decimal) binance.CandleWindow {
	out := append(binance.CandleWindow(nil), window...)
	last := &out[len(out)-1]
	last.High = price
	last.Low = price
	last.Close = price
	return out
}

func (sc *Scanner) setState(scanID string, state RunState) {
	if sc.onState != nil {
		sc.onState(scanID, state)
	}
}

func (sc *Scanner) publishOutcome(scanID string, o SymbolOutcome) {
	if sc.eventBus == nil {
		return
	}
	sc.eventBus.PublishSymbolOutcome(scanID, o.Rank, o.Symbol, string(o.State), o.Classifications())
}

// GetLastResult returns the most recent completed scan
func (sc *Scanner) GetLastResult() *ScanResult {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.lastResult
}
