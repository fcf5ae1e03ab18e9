package database

import (
	"context"
	"strings"
	"time"
)

// SymbolExclusion is a symbol the scanner never ranks
type SymbolExclusion struct {
	Symbol    string    `json:"symbol"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// ListExcludedSymbols returns every excluded symbol, upper-cased and sorted
func (db *DB) ListExcludedSymbols(ctx context.Context) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `SELECT symbol FROM symbol_exclusions ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		if s = NormalizeSymbol(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols, rows.Err()
}

// GetExclusions returns the full exclusion rows
func (db *DB) GetExclusions(ctx context.Context) ([]SymbolExclusion, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT symbol, reason, created_at FROM symbol_exclusions ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SymbolExclusion
	for rows.Next() {
		var e SymbolExclusion
		if err := rows.Scan(&e.Symbol, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertExclusion adds or updates an excluded symbol
func (db *DB) UpsertExclusion(ctx context.Context, symbol, reason string) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO symbol_exclusions (symbol, reason, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (symbol) DO UPDATE SET reason = EXCLUDED.reason`,
		NormalizeSymbol(symbol), reason, time.Now())
	return err
}

// DeleteExclusion removes an excluded symbol and reports whether it existed
func (db *DB) DeleteExclusion(ctx context.Context, symbol string) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM symbol_exclusions WHERE symbol = $1`, NormalizeSymbol(symbol))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// NormalizeSymbol trims and upper-cases a symbol
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
