// Package app wires configured components into a runnable scanner.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"binance-setup-scanner/config"
	"binance-setup-scanner/internal/binance"
	"binance-setup-scanner/internal/bot"
	"binance-setup-scanner/internal/cache"
	"binance-setup-scanner/internal/database"
	"binance-setup-scanner/internal/events"
	"binance-setup-scanner/internal/notification"
	"binance-setup-scanner/internal/report"
	"binance-setup-scanner/internal/scanner"
	"binance-setup-scanner/internal/telemetry"
	"binance-setup-scanner/internal/vault"
)

// App holds every component of one process
type App struct {
	Config    *config.Config
	EventBus  *events.EventBus
	Market    binance.MarketData
	Scanner   *scanner.Scanner
	Notifier  *notification.Manager
	Bot       *bot.ScanBot
	Cache     *cache.CacheService
	DB        *database.DB
	Telemetry *telemetry.Provider

	logger zerolog.Logger
}

// ResolveCredentials fills missing Telegram credentials from Vault and validates cfg.
// It runs before any market data call.
func ResolveCredentials(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if cfg.VaultConfig.Enabled && cfg.NotificationConfig.Telegram.Enabled {
		vc, err := vault.NewClient(cfg.VaultConfig)
		if err != nil {
			logger.Warn().Err(err).Msg("Vault unavailable, using environment credentials")
		} else if err := vc.ApplyTelegramCredentials(ctx, &cfg.NotificationConfig.Telegram); err != nil {
			logger.Warn().Err(err).Msg("Failed to read Telegram credentials from Vault")
		} else {
			logger.Debug().Msg("Telegram credentials resolved from Vault")
		}
	}
	return cfg.Validate()
}

// New builds the live market data client and the rest of the app
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	limiter := binance.NewRateLimiter(cfg.BinanceConfig.MaxWeightPerMinute, logger)
	client := binance.NewClient(cfg.BinanceConfig, limiter, logger)
	return NewWithMarket(ctx, cfg, client, logger)
}

// NewWithMarket builds the app on top of an existing market data source.
// Redis, Postgres and tracing are optional; a failing one is logged and skipped.
func NewWithMarket(ctx context.Context, cfg *config.Config, market binance.MarketData, logger zerolog.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		EventBus: events.NewEventBus(),
		logger:   logger,
	}

	tp, err := telemetry.Setup(ctx, cfg.TracingConfig)
	if err != nil {
		logger.Warn().Err(err).Msg("Tracing disabled")
	} else {
		a.Telemetry = tp
	}

	if cfg.RedisConfig.Enabled {
		cs, err := cache.NewCacheService(cfg.RedisConfig, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Candle cache disabled")
		} else {
			a.Cache = cs
			market = cache.NewCachedMarketData(market, cs, cfg.RedisConfig.CandleTTL)
			logger.Info().Str("address", cfg.RedisConfig.Address).Msg("Candle cache enabled")
		}
	}
	a.Market = market

	a.Scanner = scanner.NewScanner(market, cfg.ScannerConfig, cfg.BinanceConfig.QuoteAsset, logger)

	a.Notifier = notification.NewManagerFromConfig(cfg.NotificationConfig, logger)
	if len(a.Notifier.Enabled()) == 0 {
		a.Close()
		return nil, fmt.Errorf("build notifier: %w", config.ErrNoNotificationSink)
	}
	a.Notifier.OnResult(func(n *notification.Notification, provider string, err error) {
		a.EventBus.PublishNotification(n.ScanID, provider, err)
	})

	a.Bot = bot.NewScanBot(a.Scanner, report.ForConfig(cfg), a.Notifier, logger)
	a.Bot.SetEventBus(a.EventBus)

	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(ctx, cfg.DatabaseConfig, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Exclusion store disabled")
		} else if err := db.RunMigrations(ctx); err != nil {
			logger.Warn().Err(err).Msg("Exclusion store migrations failed, store disabled")
			db.Close()
		} else {
			a.DB = db
			a.Bot.SetExclusionSource(db)
		}
	}

	logger.Info().
		Str("mode", cfg.ScannerConfig.Mode).
		Str("universe", cfg.ScannerConfig.Universe).
		Int("top_n", cfg.ScannerConfig.TopN).
		Int("workers", cfg.ScannerConfig.Workers).
		Strs("notifiers", a.Notifier.Enabled()).
		Msg("Scanner initialized")

	return a, nil
}

// RunOnce executes a single run and sends its notification
func (a *App) RunOnce(ctx context.Context) (*bot.RunSummary, error) {
	return a.Bot.RunOnce(ctx)
}

// Close releases every optional backend
func (a *App) Close() error {
	var errs []error
	if a.Bot != nil {
		a.Bot.Stop()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if a.Telemetry != nil {
		if err := a.Telemetry.Shutdown(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("flush traces: %w", err))
		}
	}
	return errors.Join(errs...)
}
