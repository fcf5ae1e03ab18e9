package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey string

const scanIDKey contextKey = "scan_id"

// FromContext retrieves the logger from context, or the default logger
func FromContext(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return Default()
}

// NewContext creates a new context carrying the logger
func NewContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// WithScanContext tags the context logger with a scan id
func WithScanContext(ctx context.Context, scanID string) (context.Context, zerolog.Logger) {
	l := FromContext(ctx).With().Str("scan_id", scanID).Logger()
	ctx = context.WithValue(ctx, scanIDKey, scanID)
	return l.WithContext(ctx), l
}

// ScanIDFromContext returns the scan id set by WithScanContext
func ScanIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(scanIDKey).(string); ok {
		return id
	}
	return ""
}

// SymbolContext creates a logger context for per-symbol work
func SymbolContext(l zerolog.Logger, rank int, symbol string) zerolog.Logger {
	return l.With().Int("rank", rank).Str("symbol", symbol).Logger()
}

// BinanceAPIContext creates a logger context for upstream calls
func BinanceAPIContext(l zerolog.Logger, endpoint string) zerolog.Logger {
	return l.With().Str("component", "binance").Str("endpoint", endpoint).Logger()
}

// NotificationContext creates a logger context for notification sinks
func NotificationContext(l zerolog.Logger, provider string) zerolog.Logger {
	return l.With().Str("component", "notification").Str("provider", provider).Logger()
}
