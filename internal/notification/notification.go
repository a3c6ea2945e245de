// Package notification fans trading events out to chat providers. Providers
// are fire-and-forget: a failed send never blocks or fails the trading path.
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifySetup      NotificationType = "setup"
	NotifyOpen       NotificationType = "position_open"
	NotifyClose      NotificationType = "position_close"
	NotifyProtective NotificationType = "protective_move"
	NotifyHalt       NotificationType = "halt"
	NotifyError      NotificationType = "error"
	NotifyInfo       NotificationType = "info"
)

// Notification represents a notification message
type Notification struct {
	Type       NotificationType
	Title      string
	Message    string
	Symbol     string
	Price      float64
	PnL        float64
	PnLPercent float64
	Timestamp  time.Time
	Extra      map[string]interface{}
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager manages multiple notification providers
type Manager struct {
	notifiers []Notifier
	enabled   bool
}

// NewManager creates a new notification manager
func NewManager() *Manager {
	return &Manager{
		notifiers: make([]Notifier, 0),
		enabled:   true,
	}
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// SetEnabled toggles all sending globally
func (m *Manager) SetEnabled(enabled bool) {
	m.enabled = enabled
}

// Names returns the names of all registered providers
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.notifiers))
	for _, n := range m.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Send sends a notification to all enabled providers
func (m *Manager) Send(notification *Notification) error {
	if !m.enabled {
		return nil
	}

	var lastErr error
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			if err := n.Send(notification); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}

// SendSetupTriggered announces a setup reaching an actionable state
func (m *Manager) SendSetupTriggered(symbol, timeframe, direction, classification string, oscValue, structureStop float64) error {
	emoji := "🟢"
	if direction == "short" {
		emoji = "🔴"
	}

	return m.Send(&Notification{
		Type:      NotifySetup,
		Title:     fmt.Sprintf("%s Setup: %s %s", emoji, symbol, direction),
		Message:   fmt.Sprintf("%s %s on %s\nOscillator: %.1f\nStructure stop: %.4f", classification, direction, timeframe, oscValue, structureStop),
		Symbol:    symbol,
		Timestamp: time.Now(),
		Extra: map[string]interface{}{
			"timeframe":      timeframe,
			"direction":      direction,
			"classification": classification,
			"osc_value":      oscValue,
			"structure_stop": structureStop,
		},
	})
}

// SendPositionOpened announces a filled entry
func (m *Manager) SendPositionOpened(symbol, direction string, entryPrice, margin, leverage, stopPrice float64) error {
	return m.Send(&Notification{
		Type:      NotifyOpen,
		Title:     fmt.Sprintf("📈 Opened: %s %s", symbol, direction),
		Message:   fmt.Sprintf("Entry: %.4f\nMargin: %.2f @ %.0fx\nStop: %.4f", entryPrice, margin, leverage, stopPrice),
		Symbol:    symbol,
		Price:     entryPrice,
		Timestamp: time.Now(),
		Extra: map[string]interface{}{
			"direction": direction,
			"margin":    margin,
			"leverage":  leverage,
			"stop":      stopPrice,
		},
	})
}

// SendPositionClosed announces a settled exit
func (m *Manager) SendPositionClosed(symbol string, entryPrice, exitPrice, pnl, roiPercent float64, reason string) error {
	emoji := "✅"
	if pnl < 0 {
		emoji = "❌"
	}

	return m.Send(&Notification{
		Type:       NotifyClose,
		Title:      fmt.Sprintf("%s Closed: %s", emoji, symbol),
		Message:    fmt.Sprintf("Entry: %.4f / Exit: %.4f\nP&L: %.2f (%.2f%%)\nReason: %s", entryPrice, exitPrice, pnl, roiPercent, reason),
		Symbol:     symbol,
		Price:      exitPrice,
		PnL:        pnl,
		PnLPercent: roiPercent,
		Timestamp:  time.Now(),
		Extra: map[string]interface{}{
			"reason": reason,
		},
	})
}

// SendStopMoved announces a breakeven lock or trailing advance
func (m *Manager) SendStopMoved(symbol, mechanism string, stopPrice float64, trailLevel int) error {
	title := fmt.Sprintf("🔒 Breakeven locked: %s", symbol)
	message := fmt.Sprintf("Stop moved to %.4f", stopPrice)
	if mechanism == "trailing" {
		title = fmt.Sprintf("🪜 Trailing advanced: %s", symbol)
		message = fmt.Sprintf("Level %d, stop moved to %.4f", trailLevel, stopPrice)
	}

	return m.Send(&Notification{
		Type:      NotifyProtective,
		Title:     title,
		Message:   message,
		Symbol:    symbol,
		Price:     stopPrice,
		Timestamp: time.Now(),
		Extra: map[string]interface{}{
			"mechanism":   mechanism,
			"trail_level": trailLevel,
		},
	})
}

// SendTradingHalted announces a circuit breaker trip
func (m *Manager) SendTradingHalted(reason string) error {
	return m.Send(&Notification{
		Type:      NotifyHalt,
		Title:     "🛑 Trading halted",
		Message:   reason,
		Timestamp: time.Now(),
	})
}

// SendTradingResumed announces the circuit breaker closing again
func (m *Manager) SendTradingResumed() error {
	return m.Send(&Notification{
		Type:      NotifyInfo,
		Title:     "▶️ Trading resumed",
		Message:   "Circuit breaker closed, new entries accepted",
		Timestamp: time.Now(),
	})
}

// SendError sends an error notification
func (m *Manager) SendError(title, message string) error {
	return m.Send(&Notification{
		Type:      NotifyError,
		Title:     fmt.Sprintf("⚠️ %s", title),
		Message:   message,
		Timestamp: time.Now(),
	})
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

// TelegramNotifier sends notifications via Telegram
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiBase  string
	enabled  bool
	client   *http.Client
}

// TelegramConfig holds Telegram configuration
type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
	Enabled  bool   `json:"enabled"`
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		apiBase:  "https://api.telegram.org",
		enabled:  config.Enabled && config.BotToken != "" && config.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(notification *Notification) error {
	if !t.enabled {
		return nil
	}

	message := fmt.Sprintf("*%s*\n\n%s", notification.Title, notification.Message)

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// =============================================================================
// DISCORD NOTIFIER
// =============================================================================

// DiscordNotifier sends notifications via Discord webhook
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordConfig holds Discord configuration
type DiscordConfig struct {
	WebhookURL string `json:"webhook_url"`
	Enabled    bool   `json:"enabled"`
}

// NewDiscordNotifier creates a new Discord notifier
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled && config.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) IsEnabled() bool {
	return d.enabled
}

func (d *DiscordNotifier) Send(notification *Notification) error {
	if !d.enabled {
		return nil
	}

	color := 0x00FF00 // Green
	switch {
	case notification.Type == NotifyError || notification.Type == NotifyHalt:
		color = 0xFF0000 // Red
	case notification.Type == NotifyClose && notification.PnL < 0:
		color = 0xFF0000 // Red
	case notification.Type == NotifyProtective:
		color = 0xFFA500 // Amber
	}

	embed := map[string]interface{}{
		"title":       notification.Title,
		"description": notification.Message,
		"color":       color,
		"timestamp":   notification.Timestamp.Format(time.RFC3339),
	}

	if notification.Symbol != "" {
		fields := []map[string]interface{}{
			{"name": "Symbol", "value": notification.Symbol, "inline": true},
		}
		if notification.Price > 0 {
			fields = append(fields, map[string]interface{}{
				"name": "Price", "value": fmt.Sprintf("%.4f", notification.Price), "inline": true,
			})
		}
		if notification.PnL != 0 {
			fields = append(fields, map[string]interface{}{
				"name": "P&L", "value": fmt.Sprintf("%.2f (%.2f%%)", notification.PnL, notification.PnLPercent), "inline": true,
			})
		}
		embed["fields"] = fields
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}

	return nil
}
