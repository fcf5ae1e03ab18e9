package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "BINANCE_BASE_URL", "BINANCE_QUOTE_ASSET", "SCAN_MODE", "SCAN_UNIVERSE",
		"SCAN_CANDLE_LIMIT", "SCAN_TOP_N", "SCAN_PACE_INTERVAL", "SCAN_WORKERS", "SCAN_EXCLUDE_SYMBOLS",
		"TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "TELEGRAM_ENABLED",
		"DISCORD_ENABLED", "DISCORD_WEBHOOK_URL", "LOG_LEVEL", "LOG_JSON", "REDIS_ENABLED", "DB_ENABLED",
		"VAULT_ENABLED", "REPORT_TITLE",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.BinanceConfig.BaseURL != "https://api.binance.com" {
		t.Errorf("Unexpected base URL %q", cfg.BinanceConfig.BaseURL)
	}
	if cfg.ScannerConfig.Mode != ModeContinuationReversal || cfg.ScannerConfig.CandleLimit != 4 {
		t.Errorf("Unexpected scanner defaults: %+v", cfg.ScannerConfig)
	}
	if cfg.ScannerConfig.Universe != UniverseExchangeInfo {
		t.Errorf("Expected exchange_info universe, got %q", cfg.ScannerConfig.Universe)
	}
	if cfg.ScannerConfig.PaceInterval != 100*time.Millisecond {
		t.Errorf("Expected 100ms pacing, got %v", cfg.ScannerConfig.PaceInterval)
	}
	if cfg.ReportConfig.Title != "🔥 Binance — Continuation & Reversal Scan" {
		t.Errorf("Unexpected title %q", cfg.ReportConfig.Title)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected an error for an explicit missing file")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", `
scanner:
  mode: tap
  pace_interval: 200ms
  exclude_symbols: [USDCUSDT]
  universe_retry:
    max_attempts: 5
    delay: 1s
notification:
  telegram:
    bot_token: file-token
    chat_id: "42"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	sc := cfg.ScannerConfig
	if sc.Mode != ModeTap || sc.Universe != UniverseTicker || sc.CandleLimit != 2 || sc.TopN != 5 {
		t.Errorf("Tap defaults not applied: %+v", sc)
	}
	if sc.PaceInterval != 200*time.Millisecond {
		t.Errorf("Expected 200ms pacing, got %v", sc.PaceInterval)
	}
	if sc.UniverseRetry.MaxAttempts != 5 || sc.UniverseRetry.Delay != time.Second {
		t.Errorf("Unexpected retry config: %+v", sc.UniverseRetry)
	}
	if len(sc.ExcludeSymbols) != 1 || sc.ExcludeSymbols[0] != "USDCUSDT" {
		t.Errorf("Unexpected exclusions: %v", sc.ExcludeSymbols)
	}
	if cfg.NotificationConfig.Telegram.BotToken != "file-token" || cfg.NotificationConfig.Telegram.ChatID != "42" {
		t.Errorf("Telegram credentials not read from file: %+v", cfg.NotificationConfig.Telegram)
	}
	// Untouched sections keep their defaults
	if cfg.BinanceConfig.QuoteAsset != "USDT" {
		t.Errorf("Expected default quote asset, got %q", cfg.BinanceConfig.QuoteAsset)
	}
}

func TestLoadJSONFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.json", `{"scanner": {"top_n": 50, "workers": 4}, "logging": {"level": "DEBUG"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ScannerConfig.TopN != 50 || cfg.ScannerConfig.Workers != 4 {
		t.Errorf("JSON values not applied: %+v", cfg.ScannerConfig)
	}
	if cfg.LoggingConfig.Level != "DEBUG" {
		t.Errorf("Expected DEBUG, got %q", cfg.LoggingConfig.Level)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", "notification:\n  telegram:\n    bot_token: file-token\n")
	t.Setenv("TELEGRAM_TOKEN", "env-token")
	t.Setenv("TELEGRAM_CHAT_ID", "1001")
	t.Setenv("SCAN_TOP_N", "25")
	t.Setenv("SCAN_EXCLUDE_SYMBOLS", "usdcusdt, tusdusdt")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.NotificationConfig.Telegram.BotToken != "env-token" {
		t.Errorf("Env token should win, got %q", cfg.NotificationConfig.Telegram.BotToken)
	}
	if cfg.ScannerConfig.TopN != 25 {
		t.Errorf("Expected top_n 25, got %d", cfg.ScannerConfig.TopN)
	}
	want := []string{"USDCUSDT", "TUSDUSDT"}
	if len(cfg.ScannerConfig.ExcludeSymbols) != 2 || cfg.ScannerConfig.ExcludeSymbols[0] != want[0] || cfg.ScannerConfig.ExcludeSymbols[1] != want[1] {
		t.Errorf("Expected %v, got %v", want, cfg.ScannerConfig.ExcludeSymbols)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestBotTokenAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("TELEGRAM_BOT_TOKEN", "alias-token")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.NotificationConfig.Telegram.BotToken != "alias-token" {
		t.Errorf("Expected alias token, got %q", cfg.NotificationConfig.Telegram.BotToken)
	}
}

func TestValidateMissingCredentials(t *testing.T) {
	cfg := Default()
	applyModeDefaults(cfg)
	cfg.NotificationConfig.Telegram.BotToken = "token"

	err := cfg.Validate()
	if !errors.Is(err, ErrMissingTelegramCredentials) {
		t.Errorf("Expected ErrMissingTelegramCredentials, got %v", err)
	}
}

func TestValidateDiscordOnly(t *testing.T) {
	cfg := Default()
	applyModeDefaults(cfg)
	cfg.NotificationConfig.Telegram.Enabled = false

	if err := cfg.Validate(); !errors.Is(err, ErrNoNotificationSink) {
		t.Errorf("Expected ErrNoNotificationSink, got %v", err)
	}

	cfg.NotificationConfig.Discord = DiscordConfig{Enabled: true, WebhookURL: "https://discord.example/hook"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestValidateScannerSettings(t *testing.T) {
	cfg := Default()
	applyModeDefaults(cfg)
	cfg.NotificationConfig.Telegram.BotToken = "token"
	cfg.NotificationConfig.Telegram.ChatID = "chat"
	cfg.ScannerConfig.CandleLimit = 2
	cfg.ScannerConfig.Workers = 0
	cfg.ScannerConfig.Mode = "weekly"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation errors")
	}
	if errors.Is(err, ErrMissingTelegramCredentials) {
		t.Error("Credentials are set and should not be reported")
	}
}

func TestGenerateSampleConfigRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sample.yaml")
	if err := GenerateSampleConfig(path); err != nil {
		t.Fatalf("GenerateSampleConfig: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if cfg.ScannerConfig.PaceInterval != 100*time.Millisecond {
		t.Errorf("Durations should round-trip, got %v", cfg.ScannerConfig.PaceInterval)
	}
	if len(cfg.ScannerConfig.ExcludeSymbols) != 2 {
		t.Errorf("Expected sample exclusions, got %v", cfg.ScannerConfig.ExcludeSymbols)
	}
}
