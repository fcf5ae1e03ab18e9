package report

import (
	"fmt"
	"strings"

	"binance-setup-scanner/config"
	"binance-setup-scanner/internal/patterns"
	"binance-setup-scanner/internal/scanner"
)

const (
	// DefaultScanTitle heads the continuation and reversal report
	DefaultScanTitle = "🔥 Binance — Continuation & Reversal Scan"
	// DefaultTapTitle heads the tap report
	DefaultTapTitle = "🔥 Top Breakout Scan"

	// FatalMessage is sent instead of a report when the universe cannot be ranked
	FatalMessage = "Error fetching Binance symbols."

	noSetups = "No setups found."
)

// Formatter renders a scan result as notification text
type Formatter interface {
	Format(result *scanner.ScanResult) string
}

// Section is one titled bucket of the report
type Section struct {
	Classification patterns.Classification
	Heading        string
}

// ScanSections is the fixed section order of the continuation and reversal report
var ScanSections = []Section{
	{patterns.ContinuationBullish, "🟢 Bullish Continuation:"},
	{patterns.ContinuationBearish, "🔴 Bearish Continuation:"},
	{patterns.ReversalBullish, "🔵 Bullish Reversal:"},
	{patterns.ReversalBearish, "🟣 Bearish Reversal:"},
}

// ScanFormatter renders the four-bucket report
type ScanFormatter struct {
	title string
}

// NewScanFormatter creates a formatter; an empty title uses DefaultScanTitle
func NewScanFormatter(title string) *ScanFormatter {
	if title == "" {
		title = DefaultScanTitle
	}
	return &ScanFormatter{title: title}
}

// Format renders non-empty sections in fixed order with "<rank>. <symbol>" lines
func (f *ScanFormatter) Format(result *scanner.ScanResult) string {
	var b strings.Builder
	b.WriteString(f.title)
	b.WriteString("\n\n")

	found := false
	for _, s := range ScanSections {
		entries := result.Bucket(s.Classification)
		if len(entries) == 0 {
			continue
		}
		found = true

		lines := make([]string, len(entries))
		for i, e := range entries {
			lines[i] = fmt.Sprintf("%d. %s", e.Rank, e.Symbol)
		}
		b.WriteString(s.Heading)
		b.WriteString("\n")
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n\n")
	}

	if !found {
		b.WriteString(noSetups)
	}
	return b.String()
}

// TapFormatter renders the previous-extreme tap report
type TapFormatter struct {
	title string
	topN  int
}

// NewTapFormatter creates a tap formatter; topN only affects the empty fallback
func NewTapFormatter(title string, topN int) *TapFormatter {
	if title == "" {
		title = DefaultTapTitle
	}
	return &TapFormatter{title: title, topN: topN}
}

// Format renders "<symbol> price:<p> >= high:<h>" and "<= low:" lines
func (f *TapFormatter) Format(result *scanner.ScanResult) string {
	var b strings.Builder
	b.WriteString(f.title)
	b.WriteString("\n\n")

	highs := result.Bucket(patterns.TappedPreviousHigh)
	lows := result.Bucket(patterns.TappedPreviousLow)

	if len(highs) > 0 {
		b.WriteString("Hit Previous Daily High:\n")
		for _, e := range highs {
			fmt.Fprintf(&b, "%s price:%s >= high:%s\n", e.Symbol, e.Price.String(), e.Level.String())
		}
		b.WriteString("\n")
	}

	if len(lows) > 0 {
		b.WriteString("Hit Previous Daily Low:\n")
		for _, e := range lows {
			fmt.Fprintf(&b, "%s price:%s <= low:%s\n", e.Symbol, e.Price.String(), e.Level.String())
		}
		b.WriteString("\n")
	}

	if len(highs) == 0 && len(lows) == 0 {
		if f.topN > 0 {
			fmt.Fprintf(&b, "No hits in top %d.", f.topN)
		} else {
			b.WriteString("No hits.")
		}
	}
	return b.String()
}

// ForConfig picks the formatter for the configured scanner mode
func ForConfig(cfg *config.Config) Formatter {
	if cfg.ScannerConfig.Mode == config.ModeTap {
		return NewTapFormatter(cfg.ReportConfig.Title, cfg.ScannerConfig.TopN)
	}
	return NewScanFormatter(cfg.ReportConfig.Title)
}
