package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"binance-setup-scanner/config"
	"binance-setup-scanner/internal/logging"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifyReport NotificationType = "report"
	NotifyError  NotificationType = "error"
	NotifyTest   NotificationType = "test"
)

// ErrNoNotifiers is returned when no provider is enabled
var ErrNoNotifiers = errors.New("no notification provider enabled")

// Notification is one outgoing message
type Notification struct {
	Type      NotificationType
	Text      string
	ScanID    string
	Timestamp time.Time
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(ctx context.Context, notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager manages multiple notification providers
type Manager struct {
	notifiers []Notifier
	logger    zerolog.Logger
	onResult  func(n *Notification, provider string, err error)
}

// NewManager creates a new notification manager
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		notifiers: make([]Notifier, 0),
		logger:    logging.WithComponent(logger, "Notification"),
	}
}

// NewManagerFromConfig wires the configured Telegram and Discord providers
func NewManagerFromConfig(cfg config.NotificationConfig, logger zerolog.Logger) *Manager {
	m := NewManager(logger)
	m.AddNotifier(NewTelegramNotifier(cfg.Telegram))
	m.AddNotifier(NewDiscordNotifier(cfg.Discord))
	return m
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// OnResult registers a callback invoked after each provider attempt
func (m *Manager) OnResult(fn func(n *Notification, provider string, err error)) {
	m.onResult = fn
}

// Enabled returns the names of enabled providers
func (m *Manager) Enabled() []string {
	var names []string
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			names = append(names, n.Name())
		}
	}
	return names
}

// Send delivers the notification to every enabled provider. A failing
// provider does not stop the others; all failures are joined.
func (m *Manager) Send(ctx context.Context, notification *Notification) error {
	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now()
	}

	var errs []error
	sent := 0
	for _, n := range m.notifiers {
		if !n.IsEnabled() {
			continue
		}
		sent++
		log := logging.NotificationContext(m.logger, n.Name())

		err := n.Send(ctx, notification)
		if err != nil {
			log.Error().Err(err).Str("type", string(notification.Type)).Msg("Failed to send notification")
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		} else {
			log.Info().Str("type", string(notification.Type)).Int("length", len(notification.Text)).Msg("Notification sent")
		}
		if m.onResult != nil {
			m.onResult(notification, n.Name(), err)
		}
	}

	if sent == 0 {
		return ErrNoNotifiers
	}
	return errors.Join(errs...)
}

// SendReport sends a scan report
func (m *Manager) SendReport(ctx context.Context, scanID, text string) error {
	return m.Send(ctx, &Notification{Type: NotifyReport, Text: text, ScanID: scanID})
}

// SendError sends a fatal run message
func (m *Manager) SendError(ctx context.Context, scanID, text string) error {
	return m.Send(ctx, &Notification{Type: NotifyError, Text: text, ScanID: scanID})
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

// TelegramMaxMessageLength is the Bot API limit for one message
const TelegramMaxMessageLength = 4096

// TelegramNotifier sends notifications via the Telegram Bot API
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiURL   string
	enabled  bool
	client   *http.Client
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(cfg config.TelegramConfig) *TelegramNotifier {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	return &TelegramNotifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		apiURL:   apiURL,
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

// Send posts the text as plain text; reports longer than one message are split on line breaks
func (t *TelegramNotifier) Send(ctx context.Context, notification *Notification) error {
	if !t.enabled {
		return nil
	}

	for _, chunk := range SplitMessage(notification.Text, TelegramMaxMessageLength) {
		if err := t.sendMessage(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (t *TelegramNotifier) sendMessage(ctx context.Context, text string) error {
	payload := map[string]interface{}{
		"chat_id": t.chatID,
		"text":    text,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}

// SplitMessage cuts text into chunks of at most limit bytes, preferring line breaks
func SplitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
			// keep multi-byte runes intact
			for cut > 0 && !isRuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// =============================================================================
// DISCORD NOTIFIER
// =============================================================================

// DiscordMaxDescriptionLength is the embed description limit
const DiscordMaxDescriptionLength = 4096

// DiscordNotifier sends notifications via Discord webhook
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
	pacer      *rate.Limiter // webhooks allow 5 posts per 2s
}

// NewDiscordNotifier creates a new Discord notifier
func NewDiscordNotifier(cfg config.DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: cfg.WebhookURL,
		enabled:    cfg.Enabled && cfg.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
		pacer:      rate.NewLimiter(rate.Every(400*time.Millisecond), 5),
	}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) IsEnabled() bool {
	return d.enabled
}

// Send posts the text as embeds, one post per description-sized chunk.
// The title goes on the first embed, the footer and timestamp on the last.
func (d *DiscordNotifier) Send(ctx context.Context, notification *Notification) error {
	if !d.enabled {
		return nil
	}

	color := 0x00FF00 // Green
	if notification.Type == NotifyError {
		color = 0xFF0000 // Red
	}

	title, body, _ := strings.Cut(notification.Text, "\n\n")
	chunks := SplitMessage(body, DiscordMaxDescriptionLength)
	for i, chunk := range chunks {
		embed := map[string]interface{}{
			"description": chunk,
			"color":       color,
		}
		if i == 0 {
			embed["title"] = title
		}
		if i == len(chunks)-1 {
			embed["timestamp"] = notification.Timestamp.Format(time.RFC3339)
			if notification.ScanID != "" {
				embed["footer"] = map[string]interface{}{"text": "scan " + notification.ScanID}
			}
		}

		if err := d.pacer.Wait(ctx); err != nil {
			return fmt.Errorf("discord post %d/%d: %w", i+1, len(chunks), err)
		}
		if err := d.post(ctx, embed); err != nil {
			return fmt.Errorf("discord post %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

func (d *DiscordNotifier) post(ctx context.Context, embed map[string]interface{}) error {
	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}

// DefaultTestTitle heads the smoke test message
const DefaultTestTitle = "🔥 MEXC Scanner Test"

// TestMessage builds the smoke test text with one "<symbol>: Test OK ✅" line per symbol
func TestMessage(title string, symbols []string) string {
	if title == "" {
		title = DefaultTestTitle
	}
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	for _, s := range symbols {
		fmt.Fprintf(&b, "%s: Test OK ✅\n", s)
	}
	return b.String()
}
