package patterns

import (
	"github.com/shopspring/decimal"

	"binance-setup-scanner/internal/binance"
)

// Classification is a price-action category a symbol can fall into
type Classification string

const (
	// Three-candle categories
	ContinuationBullish Classification = "CONTINUATION_BULLISH"
	ContinuationBearish Classification = "CONTINUATION_BEARISH"
	ReversalBullish     Classification = "REVERSAL_BULLISH"
	ReversalBearish     Classification = "REVERSAL_BEARISH"

	// Two-candle categories
	TappedPreviousHigh Classification = "TAPPED_PREVIOUS_HIGH"
	TappedPreviousLow  Classification = "TAPPED_PREVIOUS_LOW"
)

// Match is one classification with the price that triggered it and the level it was compared against
type Match struct {
	Classification Classification  `json:"classification"`
	Price          decimal.Decimal `json:"price"`
	Level          decimal.Decimal `json:"level"`
}

// Classifier turns a candle window into the set of matched classifications
type Classifier interface {
	Name() string
	// WindowSize is the number of trailing candles Classify reads
	WindowSize() int
	// Categories lists every classification in report order
	Categories() []Classification
	// Classify returns matches in Categories order; windows shorter than WindowSize match nothing
	Classify(window binance.CandleWindow) []Match
}

// Triple is the base, prev and today candles of a three-candle window
type Triple struct {
	Base  binance.Candle
	Prev  binance.Candle
	Today binance.Candle
}

// NewTriple takes the last three candles of a window
func NewTriple(window binance.CandleWindow) (Triple, bool) {
	tail := window.Tail(3)
	if tail == nil {
		return Triple{}, false
	}
	return Triple{Base: tail[0], Prev: tail[1], Today: tail[2]}, true
}

// insideBaseRange reports base.low < price < base.high
func (t Triple) insideBaseRange(price decimal.Decimal) bool {
	return price.GreaterThan(t.Base.Low) && price.LessThan(t.Base.High)
}

// Rule is one independent predicate over a three-candle window
type Rule struct {
	Classification Classification
	Holds          func(t Triple) bool
	// Reference returns the triggering price and the base level it was compared against
	Reference func(t Triple) (price, level decimal.Decimal)
}

// DefaultRules returns the four continuation and reversal rules in report order
func DefaultRules() []Rule {
	return []Rule{
		{ContinuationBullish, isContinuationBullish, func(t Triple) (decimal.Decimal, decimal.Decimal) { return t.Today.Close, t.Base.High }},
		{ContinuationBearish, isContinuationBearish, func(t Triple) (decimal.Decimal, decimal.Decimal) { return t.Today.Close, t.Base.Low }},
		{ReversalBullish, isReversalBullish, func(t Triple) (decimal.Decimal, decimal.Decimal) { return t.Prev.Low, t.Base.Low }},
		{ReversalBearish, isReversalBearish, func(t Triple) (decimal.Decimal, decimal.Decimal) { return t.Prev.High, t.Base.High }},
	}
}

// PatternDetector classifies three-candle windows with a fixed rule set
type PatternDetector struct {
	rules []Rule
}

// NewPatternDetector creates a detector; with no rules it uses DefaultRules
func NewPatternDetector(rules ...Rule) *PatternDetector {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &PatternDetector{rules: rules}
}

func (pd *PatternDetector) Name() string { return "continuation_reversal" }

func (pd *PatternDetector) WindowSize() int { return 3 }

func (pd *PatternDetector) Categories() []Classification {
	out := make([]Classification, len(pd.rules))
	for i, r := range pd.rules {
		out[i] = r.Classification
	}
	return out
}

// Classify evaluates every rule independently against the last three candles
func (pd *PatternDetector) Classify(window binance.CandleWindow) []Match {
	t, ok := NewTriple(window)
	if !ok {
		return nil
	}

	var matches []Match
	for _, rule := range pd.rules {
		if !rule.Holds(t) {
			continue
		}
		m := Match{Classification: rule.Classification}
		if rule.Reference != nil {
			m.Price, m.Level = rule.Reference(t)
		}
		matches = append(matches, m)
	}
	return matches
}

// Has reports whether matches contain c
func Has(matches []Match, c Classification) bool {
	for _, m := range matches {
		if m.Classification == c {
			return true
		}
	}
	return false
}

var (
	_ Classifier = (*PatternDetector)(nil)
	_ Classifier = (*TapDetector)(nil)
)
