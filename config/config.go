package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Scan modes
const (
	ModeContinuationReversal = "continuation_reversal"
	ModeTap                  = "tap"
)

// Universe sources
const (
	UniverseExchangeInfo = "exchange_info"
	UniverseTicker       = "ticker"
)

// DefaultConfigFile is read when no explicit path is given
const DefaultConfigFile = "config.yaml"

var (
	// ErrMissingTelegramCredentials is returned when the bot token or chat id is absent
	ErrMissingTelegramCredentials = errors.New("TELEGRAM_TOKEN and TELEGRAM_CHAT_ID must both be set")
	// ErrNoNotificationSink is returned when every notifier is disabled
	ErrNoNotificationSink = errors.New("no notification sink enabled")
)

type Config struct {
	BinanceConfig      BinanceConfig      `json:"binance" yaml:"binance"`
	ScannerConfig      ScannerConfig      `json:"scanner" yaml:"scanner"`
	NotificationConfig NotificationConfig `json:"notification" yaml:"notification"`
	ReportConfig       ReportConfig       `json:"report" yaml:"report"`
	LoggingConfig      LoggingConfig      `json:"logging" yaml:"logging"`
	RedisConfig        RedisConfig        `json:"redis" yaml:"redis"`
	DatabaseConfig     DatabaseConfig     `json:"database" yaml:"database"`
	VaultConfig        VaultConfig        `json:"vault" yaml:"vault"`
	ServerConfig       ServerConfig       `json:"server" yaml:"server"`
	TracingConfig      TracingConfig      `json:"tracing" yaml:"tracing"`
}

// BinanceConfig holds market data endpoint settings
type BinanceConfig struct {
	BaseURL            string        `json:"base_url" yaml:"base_url"`
	QuoteAsset         string        `json:"quote_asset" yaml:"quote_asset"`
	Timeout            time.Duration `json:"timeout" yaml:"timeout"`
	MaxWeightPerMinute int           `json:"max_weight_per_minute" yaml:"max_weight_per_minute"`
}

// ScannerConfig holds scan loop settings
type ScannerConfig struct {
	Mode             string        `json:"mode" yaml:"mode"`         // continuation_reversal or tap
	Universe         string        `json:"universe" yaml:"universe"` // exchange_info or ticker
	CandleLimit      int           `json:"candle_limit" yaml:"candle_limit"`
	TopN             int           `json:"top_n" yaml:"top_n"` // 0 scans the whole ranked universe
	PaceInterval     time.Duration `json:"pace_interval" yaml:"pace_interval"`
	Workers          int           `json:"workers" yaml:"workers"`
	UseLivePrice     bool          `json:"use_live_price" yaml:"use_live_price"`
	ExcludeSymbols   []string      `json:"exclude_symbols" yaml:"exclude_symbols"`
	UniverseRetry    RetryConfig   `json:"universe_retry" yaml:"universe_retry"`
	CandleRetry      RetryConfig   `json:"candle_retry" yaml:"candle_retry"`
	BreakerThreshold int           `json:"breaker_threshold" yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `json:"breaker_cooldown" yaml:"breaker_cooldown"`
}

// RetryConfig describes a bounded retry policy
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	Delay       time.Duration `json:"delay" yaml:"delay"`
	Multiplier  float64       `json:"multiplier" yaml:"multiplier"` // <= 1 means fixed delay
	MaxDelay    time.Duration `json:"max_delay" yaml:"max_delay"`
}

type NotificationConfig struct {
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Discord  DiscordConfig  `json:"discord" yaml:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	BotToken string `json:"bot_token" yaml:"bot_token"`
	ChatID   string `json:"chat_id" yaml:"chat_id"`
	APIURL   string `json:"api_url" yaml:"api_url"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
}

// ReportConfig holds the report header
type ReportConfig struct {
	Title string `json:"title" yaml:"title"`
}

type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`
	Output      string `json:"output" yaml:"output"`
	JSONFormat  bool   `json:"json_format" yaml:"json_format"`
	IncludeFile bool   `json:"include_file" yaml:"include_file"`
}

// RedisConfig holds Redis configuration for the candle cache
type RedisConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	Address   string        `json:"address" yaml:"address"`
	Password  string        `json:"password" yaml:"password"`
	DB        int           `json:"db" yaml:"db"`
	PoolSize  int           `json:"pool_size" yaml:"pool_size"`
	CandleTTL time.Duration `json:"candle_ttl" yaml:"candle_ttl"`
}

// DatabaseConfig holds PostgreSQL settings for the symbol exclusion list
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`
	SSLMode  string `json:"sslmode" yaml:"sslmode"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Address    string `json:"address" yaml:"address"`
	Token      string `json:"token" yaml:"token"`
	MountPath  string `json:"mount_path" yaml:"mount_path"`   // KV v2 mount
	SecretPath string `json:"secret_path" yaml:"secret_path"` // Path holding bot_token and chat_id
	TLSEnabled bool   `json:"tls_enabled" yaml:"tls_enabled"`
	CACert     string `json:"ca_cert" yaml:"ca_cert"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `json:"port" yaml:"port"`
	Host            string        `json:"host" yaml:"host"`
	AllowedOrigins  string        `json:"allowed_origins" yaml:"allowed_origins"` // comma separated
	ProductionMode  bool          `json:"production_mode" yaml:"production_mode"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"service_name" yaml:"service_name"`
	Output      string `json:"output" yaml:"output"` // stdout, stderr or file path
	PrettyPrint bool   `json:"pretty_print" yaml:"pretty_print"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		BinanceConfig: BinanceConfig{
			BaseURL:            "https://api.binance.com",
			QuoteAsset:         "USDT",
			Timeout:            10 * time.Second,
			MaxWeightPerMinute: 6000,
		},
		ScannerConfig: ScannerConfig{
			Mode:         ModeContinuationReversal,
			PaceInterval: 100 * time.Millisecond,
			Workers:      1,
			UniverseRetry: RetryConfig{
				MaxAttempts: 3,
				Delay:       2 * time.Second,
			},
			CandleRetry: RetryConfig{
				MaxAttempts: 1,
			},
			BreakerThreshold: 10,
			BreakerCooldown:  30 * time.Second,
		},
		NotificationConfig: NotificationConfig{
			Telegram: TelegramConfig{
				Enabled: true,
				APIURL:  "https://api.telegram.org",
			},
		},
		LoggingConfig: LoggingConfig{
			Level:  "INFO",
			Output: "stdout",
		},
		RedisConfig: RedisConfig{
			Address:   "localhost:6379",
			PoolSize:  10,
			CandleTTL: 5 * time.Minute,
		},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "scanner",
			Database: "scanner",
			SSLMode:  "disable",
		},
		VaultConfig: VaultConfig{
			Address:    "http://localhost:8200",
			MountPath:  "secret",
			SecretPath: "setup-scanner/telegram",
		},
		ServerConfig: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		TracingConfig: TracingConfig{
			ServiceName: "binance-setup-scanner",
			Output:      "stderr",
		},
	}
}

// Load builds the configuration from defaults, .env, the config file and the environment.
// An empty path falls back to CONFIG_FILE and then config.yaml; a missing default file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = getEnvOrDefault("CONFIG_FILE", DefaultConfigFile)
	}
	if err := loadFromFile(path, cfg); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	applyModeDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Binance config
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.BinanceConfig.BaseURL)
	cfg.BinanceConfig.QuoteAsset = strings.ToUpper(getEnvOrDefault("BINANCE_QUOTE_ASSET", cfg.BinanceConfig.QuoteAsset))
	cfg.BinanceConfig.Timeout = getEnvDurationOrDefault("BINANCE_TIMEOUT", cfg.BinanceConfig.Timeout)

	// Scanner config
	cfg.ScannerConfig.Mode = getEnvOrDefault("SCAN_MODE", cfg.ScannerConfig.Mode)
	cfg.ScannerConfig.Universe = getEnvOrDefault("SCAN_UNIVERSE", cfg.ScannerConfig.Universe)
	cfg.ScannerConfig.CandleLimit = getEnvIntOrDefault("SCAN_CANDLE_LIMIT", cfg.ScannerConfig.CandleLimit)
	cfg.ScannerConfig.TopN = getEnvIntOrDefault("SCAN_TOP_N", cfg.ScannerConfig.TopN)
	cfg.ScannerConfig.PaceInterval = getEnvDurationOrDefault("SCAN_PACE_INTERVAL", cfg.ScannerConfig.PaceInterval)
	cfg.ScannerConfig.Workers = getEnvIntOrDefault("SCAN_WORKERS", cfg.ScannerConfig.Workers)
	cfg.ScannerConfig.UseLivePrice = getEnvBoolOrDefault("SCAN_USE_LIVE_PRICE", cfg.ScannerConfig.UseLivePrice)
	if excluded := os.Getenv("SCAN_EXCLUDE_SYMBOLS"); excluded != "" {
		cfg.ScannerConfig.ExcludeSymbols = splitList(excluded)
	}
	cfg.ScannerConfig.UniverseRetry.MaxAttempts = getEnvIntOrDefault("SCAN_UNIVERSE_RETRY_ATTEMPTS", cfg.ScannerConfig.UniverseRetry.MaxAttempts)
	cfg.ScannerConfig.UniverseRetry.Delay = getEnvDurationOrDefault("SCAN_UNIVERSE_RETRY_DELAY", cfg.ScannerConfig.UniverseRetry.Delay)
	cfg.ScannerConfig.CandleRetry.MaxAttempts = getEnvIntOrDefault("SCAN_CANDLE_RETRY_ATTEMPTS", cfg.ScannerConfig.CandleRetry.MaxAttempts)

	// Notification config
	cfg.NotificationConfig.Telegram.Enabled = getEnvBoolOrDefault("TELEGRAM_ENABLED", cfg.NotificationConfig.Telegram.Enabled)
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_TOKEN",
		getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken))
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvBoolOrDefault("DISCORD_ENABLED", cfg.NotificationConfig.Discord.Enabled)
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	cfg.ReportConfig.Title = getEnvOrDefault("REPORT_TITLE", cfg.ReportConfig.Title)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.CandleTTL = getEnvDurationOrDefault("REDIS_CANDLE_TTL", cfg.RedisConfig.CandleTTL)

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DB_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
	cfg.ServerConfig.ProductionMode = getEnvBoolOrDefault("SERVER_PRODUCTION", cfg.ServerConfig.ProductionMode)

	// Tracing config
	cfg.TracingConfig.Enabled = getEnvBoolOrDefault("TRACING_ENABLED", cfg.TracingConfig.Enabled)
	cfg.TracingConfig.Output = getEnvOrDefault("TRACING_OUTPUT", cfg.TracingConfig.Output)
}

// applyModeDefaults fills the settings whose defaults depend on the scan mode
func applyModeDefaults(cfg *Config) {
	sc := &cfg.ScannerConfig
	switch sc.Mode {
	case ModeTap:
		if sc.Universe == "" {
			sc.Universe = UniverseTicker
		}
		if sc.CandleLimit == 0 {
			sc.CandleLimit = 2
		}
		if sc.TopN == 0 {
			sc.TopN = 5
		}
		if cfg.ReportConfig.Title == "" {
			cfg.ReportConfig.Title = "🔥 Top Breakout Scan"
		}
	default:
		if sc.Universe == "" {
			sc.Universe = UniverseExchangeInfo
		}
		if sc.CandleLimit == 0 {
			sc.CandleLimit = 4
		}
		if cfg.ReportConfig.Title == "" {
			cfg.ReportConfig.Title = "🔥 Binance — Continuation & Reversal Scan"
		}
	}
}

// WindowSize returns the number of candles the configured mode classifies
func (c *ScannerConfig) WindowSize() int {
	if c.Mode == ModeTap {
		return 2
	}
	return 3
}

// Validate checks the scan settings and that a notification sink is usable
func (c *Config) Validate() error {
	var errs []error

	sc := c.ScannerConfig
	switch sc.Mode {
	case ModeContinuationReversal, ModeTap:
	default:
		errs = append(errs, fmt.Errorf("unknown scanner mode %q", sc.Mode))
	}
	switch sc.Universe {
	case UniverseExchangeInfo, UniverseTicker:
	default:
		errs = append(errs, fmt.Errorf("unknown scanner universe %q", sc.Universe))
	}
	if sc.CandleLimit < sc.WindowSize() {
		errs = append(errs, fmt.Errorf("candle_limit %d is smaller than the %d-candle window", sc.CandleLimit, sc.WindowSize()))
	}
	if sc.TopN < 0 {
		errs = append(errs, fmt.Errorf("top_n must not be negative"))
	}
	if sc.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1"))
	}
	if sc.PaceInterval < 0 {
		errs = append(errs, fmt.Errorf("pace_interval must not be negative"))
	}
	if sc.UniverseRetry.MaxAttempts < 1 || sc.CandleRetry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry max_attempts must be at least 1"))
	}
	if c.BinanceConfig.BaseURL == "" {
		errs = append(errs, fmt.Errorf("binance base_url is required"))
	}

	tg := c.NotificationConfig.Telegram
	dc := c.NotificationConfig.Discord
	if tg.Enabled && (tg.BotToken == "" || tg.ChatID == "") {
		errs = append(errs, ErrMissingTelegramCredentials)
	}
	if !tg.Enabled && !(dc.Enabled && dc.WebhookURL != "") {
		errs = append(errs, ErrNoNotificationSink)
	}

	return errors.Join(errs...)
}

func loadFromFile(filename string, cfg *Config) error {
	file, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	// YAML is a superset of JSON, so config.json files decode here as well
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}

// GenerateSampleConfig writes a sample YAML configuration file
func GenerateSampleConfig(filename string) error {
	cfg := Default()
	applyModeDefaults(cfg)
	cfg.ScannerConfig.ExcludeSymbols = []string{"USDCUSDT", "FDUSDUSDT"}
	cfg.NotificationConfig.Telegram.BotToken = "your_bot_token_here"
	cfg.NotificationConfig.Telegram.ChatID = "your_chat_id_here"

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
