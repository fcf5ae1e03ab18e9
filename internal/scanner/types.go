package scanner

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"binance-setup-scanner/internal/patterns"
)

// ErrInsufficientHistory marks a symbol whose window is shorter than the classifier needs
var ErrInsufficientHistory = errors.New("insufficient candle history")

// RunState is the lifecycle state of one scan run
type RunState string

const (
	StateInitializing RunState = "INITIALIZING"
	StateRanking      RunState = "RANKING"
	StateScanning     RunState = "SCANNING"
	StateReporting    RunState = "REPORTING"
	StateDone         RunState = "DONE"
	StateFailed       RunState = "FAILED"
)

// Terminal reports whether no further transitions follow
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// SymbolState is the per-symbol progress within a run
type SymbolState string

const (
	SymbolPending    SymbolState = "PENDING"
	SymbolFetched    SymbolState = "FETCHED"
	SymbolClassified SymbolState = "CLASSIFIED"
	SymbolSkipped    SymbolState = "SKIPPED"
	SymbolFailed     SymbolState = "FAILED"
)

// Entry is one symbol placed in a classification bucket
type Entry struct {
	Rank   int             `json:"rank"`
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Level  decimal.Decimal `json:"level"`
}

// SymbolOutcome is the final state of one ranked symbol
type SymbolOutcome struct {
	Rank    int              `json:"rank"`
	Symbol  string           `json:"symbol"`
	State   SymbolState      `json:"state"`
	Matches []patterns.Match `json:"matches,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Classifications returns the matched classification names
func (o SymbolOutcome) Classifications() []string {
	out := make([]string, len(o.Matches))
	for i, m := range o.Matches {
		out[i] = string(m.Classification)
	}
	return out
}

// ScanResult aggregates one run
type ScanResult struct {
	ScanID     string                              `json:"scan_id"`
	Mode       string                              `json:"mode"`
	StartTime  time.Time                           `json:"start_time"`
	EndTime    time.Time                           `json:"end_time"`
	Duration   time.Duration                       `json:"duration"`
	TopN       int                                 `json:"top_n"`
	Universe   int                                 `json:"universe"`
	Categories []patterns.Classification           `json:"categories"`
	Buckets    map[patterns.Classification][]Entry `json:"buckets"`
	Outcomes   []SymbolOutcome                     `json:"outcomes"`
	Counts     map[SymbolState]int                 `json:"counts"`
}

// Bucket returns the entries for c in rank order
func (r *ScanResult) Bucket(c patterns.Classification) []Entry {
	if r == nil {
		return nil
	}
	return r.Buckets[c]
}

// Empty reports whether no symbol matched any classification
func (r *ScanResult) Empty() bool {
	if r == nil {
		return true
	}
	for _, entries := range r.Buckets {
		if len(entries) > 0 {
			return false
		}
	}
	return true
}

// BucketSizes returns entry counts keyed by classification name
func (r *ScanResult) BucketSizes() map[string]int {
	sizes := make(map[string]int, len(r.Categories))
	for _, c := range r.Categories {
		sizes[string(c)] = len(r.Buckets[c])
	}
	return sizes
}

// newScanResult starts a result with an empty bucket per category
func newScanResult(scanID, mode string, topN int, categories []patterns.Classification) *ScanResult {
	buckets := make(map[patterns.Classification][]Entry, len(categories))
	for _, c := range categories {
		buckets[c] = []Entry{}
	}
	return &ScanResult{
		ScanID:     scanID,
		Mode:       mode,
		StartTime:  time.Now(),
		TopN:       topN,
		Categories: categories,
		Buckets:    buckets,
		Counts:     make(map[SymbolState]int),
	}
}

// aggregate fills buckets and counters from outcomes, which are already in rank order
func (r *ScanResult) aggregate(outcomes []SymbolOutcome) {
	r.Outcomes = outcomes
	for _, o := range outcomes {
		r.Counts[o.State]++
		for _, m := range o.Matches {
			r.Buckets[m.Classification] = append(r.Buckets[m.Classification], Entry{
				Rank:   o.Rank,
				Symbol: o.Symbol,
				Price:  m.Price,
				Level:  m.Level,
			})
		}
	}
}
