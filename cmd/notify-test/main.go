// Command notify-test sends a fixed smoke test message to every configured sink.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"binance-setup-scanner/config"
	"binance-setup-scanner/internal/app"
	"binance-setup-scanner/internal/logging"
	"binance-setup-scanner/internal/notification"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON config file")
	title := flag.String("title", notification.DefaultTestTitle, "message title")
	symbols := flag.String("symbols", "BTCUSDT,ETHUSDT", "comma separated symbols listed in the message")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ResolveCredentials(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	var list []string
	for _, s := range strings.Split(*symbols, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			list = append(list, s)
		}
	}

	manager := notification.NewManagerFromConfig(cfg.NotificationConfig, logger)
	err = manager.Send(ctx, &notification.Notification{
		Type: notification.NotifyTest,
		Text: notification.TestMessage(*title, list),
	})
	if err != nil {
		logger.Error().Err(err).Msg("Test message failed")
		os.Exit(1)
	}

	logger.Info().Strs("providers", manager.Enabled()).Msg("Test message sent")
}
