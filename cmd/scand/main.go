// Command scand serves the scanner over HTTP and optionally runs it on a schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"binance-setup-scanner/config"
	"binance-setup-scanner/internal/api"
	"binance-setup-scanner/internal/app"
	"binance-setup-scanner/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON config file")
	interval := flag.Duration("interval", 0, "run a scan at this interval; 0 runs only on demand")
	runOnStart := flag.Bool("run-on-start", false, "start a scan as soon as the server is up")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
	})
	logging.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.ResolveCredentials(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize scanner")
	}

	server := api.NewServer(cfg.ServerConfig, a.EventBus, a.Bot, logger)
	if a.Cache != nil {
		server.AddHealthCheck("cache", a.Cache.Ping)
		server.AddHealthStats("cache", func() interface{} { return a.Cache.GetStats() })
	}
	if a.DB != nil {
		server.AddHealthCheck("database", a.DB.HealthCheck)
		server.SetExclusionStore(a.DB)
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start web server")
		}
	}()

	if *runOnStart {
		if err := a.Bot.Trigger(ctx); err != nil {
			logger.Warn().Err(err).Msg("Initial scan not started")
		}
	}
	a.Bot.Start(ctx, *interval)

	logger.Info().
		Str("host", cfg.ServerConfig.Host).
		Int("port", cfg.ServerConfig.Port).
		Dur("interval", *interval).
		Msg("Scanner daemon running")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutting down")

	timeout := cfg.ServerConfig.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error shutting down web server")
	}
	cancel()

	if err := a.Close(); err != nil {
		logger.Warn().Err(err).Msg("Shutdown incomplete")
	}
	logger.Info().Msg("Shutdown complete")
}
