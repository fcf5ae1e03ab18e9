package screener

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"binance-setup-scanner/internal/binance"
)

func stat(symbol string, volume int64) binance.VolumeStat {
	return binance.VolumeStat{Symbol: symbol, QuoteVolume: decimal.NewFromInt(volume)}
}

func symbolsOf(ranked []SymbolRank) []string {
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.Symbol
	}
	return out
}

func TestRankOrdersByQuoteVolume(t *testing.T) {
	r := NewRanker(0, nil)

	ranked := r.Rank(
		[]string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		[]binance.VolumeStat{stat("SOLUSDT", 300), stat("BTCUSDT", 900), stat("ETHUSDT", 500)},
	)

	if got, want := symbolsOf(ranked), []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i, sr := range ranked {
		if sr.Rank != i+1 {
			t.Errorf("Expected rank %d for %s, got %d", i+1, sr.Symbol, sr.Rank)
		}
	}
	if !ranked[0].QuoteVolume.Equal(decimal.NewFromInt(900)) {
		t.Errorf("Unexpected volume %s", ranked[0].QuoteVolume)
	}
}

func TestRankIntersectsUniverse(t *testing.T) {
	r := NewRanker(0, nil)

	ranked := r.Rank(
		[]string{"BTCUSDT", "DELISTEDUSDT"},
		[]binance.VolumeStat{stat("ETHBTC", 10_000), stat("BTCUSDT", 900)},
	)

	if got := symbolsOf(ranked); !reflect.DeepEqual(got, []string{"BTCUSDT"}) {
		t.Errorf("Expected only BTCUSDT, got %v", got)
	}
}

func TestRankStableTies(t *testing.T) {
	r := NewRanker(0, nil)
	symbols := []string{"AAAUSDT", "BBBUSDT", "CCCUSDT", "DDDUSDT"}
	stats := []binance.VolumeStat{stat("CCCUSDT", 100), stat("AAAUSDT", 100), stat("DDDUSDT", 200), stat("BBBUSDT", 100)}

	first := r.Rank(symbols, stats)
	second := r.Rank(symbols, stats)

	want := []string{"DDDUSDT", "CCCUSDT", "AAAUSDT", "BBBUSDT"}
	if got := symbolsOf(first); !reflect.DeepEqual(got, want) {
		t.Errorf("Ties should keep stats order: expected %v, got %v", want, got)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("Ranking the same inputs twice should give identical output")
	}
}

func TestRankTopN(t *testing.T) {
	r := NewRanker(2, nil)

	ranked := r.Rank(
		[]string{"AUSDT", "BUSDT", "CUSDT"},
		[]binance.VolumeStat{stat("AUSDT", 1), stat("BUSDT", 3), stat("CUSDT", 2)},
	)

	if got := symbolsOf(ranked); !reflect.DeepEqual(got, []string{"BUSDT", "CUSDT"}) {
		t.Errorf("Expected top 2, got %v", got)
	}
}

func TestRankExclusions(t *testing.T) {
	r := NewRanker(0, []string{"usdcusdt"})
	r.Exclude("FDUSDUSDT")

	ranked := r.Rank(
		[]string{"USDCUSDT", "FDUSDUSDT", "BTCUSDT"},
		[]binance.VolumeStat{stat("USDCUSDT", 5000), stat("FDUSDUSDT", 4000), stat("BTCUSDT", 900)},
	)

	if len(ranked) != 1 || ranked[0].Symbol != "BTCUSDT" || ranked[0].Rank != 1 {
		t.Errorf("Excluded symbols should not take a rank, got %+v", ranked)
	}
}

func TestSetStoredExclusionsReplacesPreviousSet(t *testing.T) {
	r := NewRanker(0, []string{"USDCUSDT"})
	universe := []string{"USDCUSDT", "FDUSDUSDT", "BTCUSDT"}
	stats := []binance.VolumeStat{stat("USDCUSDT", 5000), stat("FDUSDUSDT", 4000), stat("BTCUSDT", 900)}

	r.SetStoredExclusions([]string{"fdusdusdt", "BTCUSDT"})
	if got := symbolsOf(r.Rank(universe, stats)); len(got) != 0 {
		t.Errorf("Expected every symbol excluded, got %v", got)
	}
	if got := r.Excluded(); !reflect.DeepEqual(got, []string{"BTCUSDT", "FDUSDUSDT", "USDCUSDT"}) {
		t.Errorf("Unexpected exclusion list %v", got)
	}

	r.SetStoredExclusions(nil)
	if got := symbolsOf(r.Rank(universe, stats)); !reflect.DeepEqual(got, []string{"FDUSDUSDT", "BTCUSDT"}) {
		t.Errorf("Removed exclusions should be ranked again, got %v", got)
	}
}

func TestRankDuplicateStats(t *testing.T) {
	r := NewRanker(0, nil)

	ranked := r.Rank([]string{"BTCUSDT"}, []binance.VolumeStat{stat("BTCUSDT", 5), stat("BTCUSDT", 9)})

	if len(ranked) != 1 || !ranked[0].QuoteVolume.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Expected the first entry to win, got %+v", ranked)
	}
}

func TestRankEmpty(t *testing.T) {
	if ranked := NewRanker(5, nil).Rank(nil, nil); len(ranked) != 0 {
		t.Errorf("Expected empty ranking, got %v", ranked)
	}
}

func TestSymbolsWithQuote(t *testing.T) {
	got := SymbolsWithQuote([]binance.VolumeStat{stat("BTCUSDT", 1), stat("ETHBTC", 1), stat("USDT", 1), stat("SOLUSDT", 1)}, "USDT")

	if want := []string{"BTCUSDT", "SOLUSDT"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
