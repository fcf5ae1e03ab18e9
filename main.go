package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"binance-setup-scanner/config"
	"binance-setup-scanner/internal/app"
	"binance-setup-scanner/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON config file")
	generate := flag.String("generate-config", "", "write a sample config to this path and exit")
	flag.Parse()

	if *generate != "" {
		if err := config.GenerateSampleConfig(*generate); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write sample config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Sample configuration written to %s\n", *generate)
		return
	}

	os.Exit(run(*configPath))
}

func run(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	logger := logging.New(logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
	})
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.ResolveCredentials(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return 1
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize scanner")
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Msg("Shutdown incomplete")
		}
	}()

	summary, err := a.RunOnce(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Run failed")
		return 1
	}

	logger.Info().Str("scan_id", summary.ScanID).Dur("duration", summary.Duration).Msg("Run complete")
	return 0
}
