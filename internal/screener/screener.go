package screener

import (
	"slices"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"binance-setup-scanner/internal/binance"
)

// SymbolRank is a symbol's position in the volume-ordered universe
type SymbolRank struct {
	Symbol      string          `json:"symbol"`
	Rank        int             `json:"rank"` // 1 = highest quote volume
	QuoteVolume decimal.Decimal `json:"quoteVolume"`
}

// Ranker orders the tradable universe by 24h quote volume
type Ranker struct {
	topN int

	mu       sync.RWMutex
	excluded map[string]struct{} // configured, kept for the process lifetime
	stored   map[string]struct{} // replaced by SetStoredExclusions
}

// NewRanker creates a ranker; topN <= 0 keeps every ranked symbol
func NewRanker(topN int, excludeSymbols []string) *Ranker {
	r := &Ranker{
		topN:     topN,
		excluded: make(map[string]struct{}),
		stored:   make(map[string]struct{}),
	}
	r.Exclude(excludeSymbols...)
	return r
}

// Exclude adds symbols that are never ranked
func (r *Ranker) Exclude(symbols ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addSymbols(r.excluded, symbols)
}

// SetStoredExclusions replaces the exclusions loaded from the store.
// Configured exclusions are unaffected.
func (r *Ranker) SetStoredExclusions(symbols []string) {
	stored := make(map[string]struct{}, len(symbols))
	addSymbols(stored, symbols)

	r.mu.Lock()
	r.stored = stored
	r.mu.Unlock()
}

// Excluded returns every excluded symbol, sorted
func (r *Ranker) Excluded() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.excluded)+len(r.stored))
	for s := range r.excluded {
		out = append(out, s)
	}
	for s := range r.stored {
		if _, dup := r.excluded[s]; !dup {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out
}

func addSymbols(set map[string]struct{}, symbols []string) {
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			set[s] = struct{}{}
		}
	}
}

// Rank keeps stats whose symbol is tradable and not excluded, sorts them by
// quote volume descending and numbers them from 1. Equal volumes keep the
// order they have in stats.
func (r *Ranker) Rank(symbols []string, stats []binance.VolumeStat) []SymbolRank {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tradable := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		tradable[s] = struct{}{}
	}

	ranked := make([]SymbolRank, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, st := range stats {
		if _, ok := tradable[st.Symbol]; !ok {
			continue
		}
		if r.isExcluded(st.Symbol) {
			continue
		}
		if _, dup := seen[st.Symbol]; dup {
			continue
		}
		seen[st.Symbol] = struct{}{}
		ranked = append(ranked, SymbolRank{Symbol: st.Symbol, QuoteVolume: st.QuoteVolume})
	}

	slices.SortStableFunc(ranked, func(a, b SymbolRank) int {
		return b.QuoteVolume.Cmp(a.QuoteVolume)
	})

	if r.topN > 0 && len(ranked) > r.topN {
		ranked = ranked[:r.topN]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// SymbolsWithQuote derives a universe from the 24h stats by quote-asset suffix
func SymbolsWithQuote(stats []binance.VolumeStat, quoteAsset string) []string {
	symbols := make([]string, 0, len(stats))
	for _, st := range stats {
		if strings.HasSuffix(st.Symbol, quoteAsset) && st.Symbol != quoteAsset {
			symbols = append(symbols, st.Symbol)
		}
	}
	return symbols
}

// isExcluded checks if a symbol is in either exclusion list; callers hold mu
func (r *Ranker) isExcluded(symbol string) bool {
	if _, ok := r.excluded[symbol]; ok {
		return true
	}
	_, ok := r.stored[symbol]
	return ok
}
