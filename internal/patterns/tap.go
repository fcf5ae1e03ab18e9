package patterns

import (
	"binance-setup-scanner/internal/binance"
)

// TapDetector flags a latest candle that reached the previous candle's high or low.
// Comparisons are inclusive: touching the level counts as a tap.
type TapDetector struct{}

// NewTapDetector creates a two-candle tap detector
func NewTapDetector() *TapDetector {
	return &TapDetector{}
}

func (td *TapDetector) Name() string { return "tap" }

func (td *TapDetector) WindowSize() int { return 2 }

func (td *TapDetector) Categories() []Classification {
	return []Classification{TappedPreviousHigh, TappedPreviousLow}
}

// Classify compares the latest candle against the one before it
func (td *TapDetector) Classify(window binance.CandleWindow) []Match {
	tail := window.Tail(2)
	if tail == nil {
		return nil
	}
	prev, latest := tail[0], tail[1]

	var matches []Match
	if latest.High.GreaterThanOrEqual(prev.High) {
		matches = append(matches, Match{Classification: TappedPreviousHigh, Price: latest.High, Level: prev.High})
	}
	if latest.Low.LessThanOrEqual(prev.Low) {
		matches = append(matches, Match{Classification: TappedPreviousLow, Price: latest.Low, Level: prev.Low})
	}
	return matches
}
