package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/vault/api"

	"binance-setup-scanner/config"
)

// ErrSecretNotFound is returned when the credentials path holds no secret
var ErrSecretNotFound = errors.New("vault secret not found")

// TelegramCredentials represents the bot credentials stored in Vault
type TelegramCredentials struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// Complete reports whether both fields are set
func (c TelegramCredentials) Complete() bool {
	return c.BotToken != "" && c.ChatID != ""
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cached *TelegramCredentials
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// GetTelegramCredentials reads the bot token and chat id from the KV v2 secret.
// The first successful read is cached for the life of the client.
func (c *Client) GetTelegramCredentials(ctx context.Context) (TelegramCredentials, error) {
	c.mu.RLock()
	if c.cached != nil {
		creds := *c.cached
		c.mu.RUnlock()
		return creds, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return TelegramCredentials{}, fmt.Errorf("vault is disabled")
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath())
	if err != nil {
		return TelegramCredentials{}, fmt.Errorf("failed to read telegram credentials from vault: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return TelegramCredentials{}, ErrSecretNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return TelegramCredentials{}, fmt.Errorf("invalid secret format")
	}

	creds := TelegramCredentials{
		BotToken: getString(data, "bot_token"),
		ChatID:   getString(data, "chat_id"),
	}

	c.mu.Lock()
	c.cached = &creds
	c.mu.Unlock()

	return creds, nil
}

// ApplyTelegramCredentials fills empty Telegram settings from Vault.
// Values already present in cfg win.
func (c *Client) ApplyTelegramCredentials(ctx context.Context, cfg *config.TelegramConfig) error {
	if !c.config.Enabled || (cfg.BotToken != "" && cfg.ChatID != "") {
		return nil
	}

	creds, err := c.GetTelegramCredentials(ctx)
	if err != nil {
		return err
	}
	if cfg.BotToken == "" {
		cfg.BotToken = creds.BotToken
	}
	if cfg.ChatID == "" {
		cfg.ChatID = creds.ChatID
	}
	return nil
}

// ClearCache drops the cached credentials
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

// secretPath returns the KV v2 data path for the credentials
func (c *Client) secretPath() string {
	return fmt.Sprintf("%s/data/%s",
		strings.Trim(c.config.MountPath, "/"),
		strings.Trim(c.config.SecretPath, "/"))
}

func getString(data map[string]interface{}, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		// chat ids are often stored as numbers
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}
