package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"binance-setup-scanner/internal/binance"
	"binance-setup-scanner/internal/events"
	"binance-setup-scanner/internal/logging"
	"binance-setup-scanner/internal/report"
	"binance-setup-scanner/internal/scanner"
)

// ErrScanInProgress is returned when a run is requested while one is active
var ErrScanInProgress = errors.New("scan already in progress")

// notifyTimeout bounds the final notification, which is sent even after cancellation
const notifyTimeout = 30 * time.Second

// Notifier delivers the single message of a run
type Notifier interface {
	SendReport(ctx context.Context, scanID, text string) error
	SendError(ctx context.Context, scanID, text string) error
}

// ExclusionSource supplies symbols that are never scanned
type ExclusionSource interface {
	ListExcludedSymbols(ctx context.Context) ([]string, error)
}

// Status is a snapshot of the runner
type Status struct {
	Running     bool                   `json:"running"`
	ScanID      string                 `json:"scan_id,omitempty"`
	State       scanner.RunState       `json:"state,omitempty"`
	LastRun     time.Time              `json:"last_run,omitempty"`
	LastError   string                 `json:"last_error,omitempty"`
	TotalRuns   int                    `json:"total_runs"`
	BucketSizes map[string]int         `json:"bucket_sizes,omitempty"`
	Breaker     map[string]interface{} `json:"circuit_breaker,omitempty"`
}

// RunSummary describes a finished run
type RunSummary struct {
	ScanID    string              `json:"scan_id"`
	State     scanner.RunState    `json:"state"`
	Result    *scanner.ScanResult `json:"result,omitempty"`
	Report    string              `json:"report"`
	Notified  bool                `json:"notified"`
	StartedAt time.Time           `json:"started_at"`
	Duration  time.Duration       `json:"duration"`
}

// ScanBot runs scans and sends exactly one notification per run
type ScanBot struct {
	scanner    *scanner.Scanner
	formatter  report.Formatter
	notifier   Notifier
	exclusions ExclusionSource
	eventBus   *events.EventBus
	logger     zerolog.Logger

	mu        sync.RWMutex
	running   bool
	scanID    string
	state     scanner.RunState
	lastRun   *RunSummary
	lastError string
	totalRuns int

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScanBot wires a scanner, a report formatter and a notifier
func NewScanBot(sc *scanner.Scanner, formatter report.Formatter, notifier Notifier, logger zerolog.Logger) *ScanBot {
	b := &ScanBot{
		scanner:   sc,
		formatter: formatter,
		notifier:  notifier,
		logger:    logging.WithComponent(logger, "ScanBot"),
		stopChan:  make(chan struct{}),
	}
	sc.OnState(b.setState)
	return b
}

// SetEventBus sets where run events are published
func (b *ScanBot) SetEventBus(bus *events.EventBus) {
	b.eventBus = bus
	b.scanner.SetEventBus(bus)
}

// SetExclusionSource adds a store of excluded symbols read before each run
func (b *ScanBot) SetExclusionSource(src ExclusionSource) {
	b.exclusions = src
}

// RunOnce executes one full run. An upstream failure during ranking sends the
// fatal message instead of a report and is returned. A notification failure is
// returned after the run completes.
func (b *ScanBot) RunOnce(ctx context.Context) (*RunSummary, error) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil, ErrScanInProgress
	}
	b.running = true
	b.scanID = ""
	b.totalRuns++
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	return b.run(ctx)
}

// Trigger starts a run in the background
func (b *ScanBot) Trigger(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrScanInProgress
	}
	b.running = true
	b.scanID = ""
	b.totalRuns++
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			b.mu.Lock()
			b.running = false
			b.mu.Unlock()
		}()
		if _, err := b.run(ctx); err != nil {
			b.logger.Error().Err(err).Msg("Triggered scan failed")
		}
	}()
	return nil
}

// Start runs a scan every interval until Stop is called or ctx is done
func (b *ScanBot) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	b.logger.Info().Dur("interval", interval).Msg("Scheduled scans started")

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := b.RunOnce(ctx); err != nil {
					if errors.Is(err, ErrScanInProgress) {
						b.logger.Warn().Msg("Previous scan still running, skipping tick")
						continue
					}
					b.logger.Error().Err(err).Msg("Scheduled scan failed")
				}
			case <-b.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the schedule and waits for background runs
func (b *ScanBot) Stop() {
	b.stopOnce.Do(func() { close(b.stopChan) })
	b.wg.Wait()
	b.logger.Info().Msg("Scan bot stopped")
}

func (b *ScanBot) run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	b.setState("", scanner.StateInitializing)

	b.applyExclusions(ctx)

	result, err := b.scanner.Run(ctx)
	if err != nil {
		return b.fail(ctx, start, err)
	}

	b.setState(result.ScanID, scanner.StateReporting)
	text := b.formatter.Format(result)

	summary := &RunSummary{
		ScanID:    result.ScanID,
		Result:    result,
		Report:    text,
		StartedAt: start,
	}

	notifyErr := b.notify(ctx, func(nctx context.Context) error {
		return b.notifier.SendReport(nctx, result.ScanID, text)
	})
	summary.Notified = notifyErr == nil

	b.setState(result.ScanID, scanner.StateDone)
	summary.State = scanner.StateDone
	summary.Duration = time.Since(start)
	b.finish(summary, notifyErr)

	b.logger.Info().
		Str("scan_id", result.ScanID).
		Interface("buckets", result.BucketSizes()).
		Bool("notified", summary.Notified).
		Dur("duration", summary.Duration).
		Msg("Run finished")

	if notifyErr != nil {
		return summary, fmt.Errorf("failed to send report: %w", notifyErr)
	}
	return summary, nil
}

// fail handles a run that ended before scanning
func (b *ScanBot) fail(ctx context.Context, start time.Time, runErr error) (*RunSummary, error) {
	b.mu.RLock()
	scanID := b.scanID
	b.mu.RUnlock()

	b.setState(scanID, scanner.StateFailed)
	if b.eventBus != nil {
		b.eventBus.PublishScanFailed(scanID, runErr)
	}

	summary := &RunSummary{
		ScanID:    scanID,
		State:     scanner.StateFailed,
		StartedAt: start,
	}

	var notifyErr error
	if errors.Is(runErr, binance.ErrUpstreamUnavailable) {
		summary.Report = report.FatalMessage
		notifyErr = b.notify(ctx, func(nctx context.Context) error {
			return b.notifier.SendError(nctx, scanID, report.FatalMessage)
		})
		summary.Notified = notifyErr == nil
	}
	summary.Duration = time.Since(start)
	b.finish(summary, runErr)

	b.logger.Error().Err(runErr).Str("scan_id", scanID).Bool("notified", summary.Notified).Msg("Run failed")

	if notifyErr != nil {
		return summary, errors.Join(runErr, fmt.Errorf("failed to send error message: %w", notifyErr))
	}
	return summary, runErr
}

// notify sends with a context that survives cancellation of the run
func (b *ScanBot) notify(ctx context.Context, send func(context.Context) error) error {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	return send(nctx)
}

func (b *ScanBot) applyExclusions(ctx context.Context) {
	if b.exclusions == nil {
		return
	}
	symbols, err := b.exclusions.ListExcludedSymbols(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Failed to load symbol exclusions, keeping the previous list")
		return
	}
	b.scanner.SetStoredExclusions(symbols)
	b.logger.Debug().Int("stored", len(symbols)).Strs("excluded", b.scanner.Excluded()).Msg("Applied stored symbol exclusions")
}

func (b *ScanBot) finish(summary *RunSummary, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastRun = summary
	b.lastError = ""
	if err != nil {
		b.lastError = err.Error()
	}
}

func (b *ScanBot) setState(scanID string, state scanner.RunState) {
	b.mu.Lock()
	if scanID != "" {
		b.scanID = scanID
	}
	b.state = state
	scanID = b.scanID
	b.mu.Unlock()

	b.logger.Debug().Str("scan_id", scanID).Str("state", string(state)).Msg("Run state changed")
	if b.eventBus != nil {
		b.eventBus.PublishScanState(scanID, string(state))
	}
}

// IsRunning reports whether a run is active
func (b *ScanBot) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// LastRun returns the most recent finished run
func (b *ScanBot) LastRun() *RunSummary {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastRun
}

// GetStatus returns a snapshot of the runner
func (b *ScanBot) GetStatus() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Status{
		Running:   b.running,
		ScanID:    b.scanID,
		State:     b.state,
		LastError: b.lastError,
		TotalRuns: b.totalRuns,
		Breaker:   b.scanner.Breaker().GetStats(),
	}
	if b.lastRun != nil {
		st.LastRun = b.lastRun.StartedAt
		if b.lastRun.Result != nil {
			st.BucketSizes = b.lastRun.Result.BucketSizes()
		}
	}
	return st
}
