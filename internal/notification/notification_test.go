package notification

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// stubNotifier records what it was asked to send.
type stubNotifier struct {
	name    string
	enabled bool
	sent    []*Notification
}

func (s *stubNotifier) Send(n *Notification) error {
	s.sent = append(s.sent, n)
	return nil
}

func (s *stubNotifier) Name() string    { return s.name }
func (s *stubNotifier) IsEnabled() bool { return s.enabled }

// TestManagerFanOut tests that enabled providers receive every send and
// disabled ones are skipped.
func TestManagerFanOut(t *testing.T) {
	active := &stubNotifier{name: "active", enabled: true}
	dormant := &stubNotifier{name: "dormant", enabled: false}

	m := NewManager()
	m.AddNotifier(active)
	m.AddNotifier(dormant)

	if err := m.SendPositionClosed("BTCUSDT", 100, 101.5, 150, 15, "closed_trailing"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if len(active.sent) != 1 {
		t.Fatalf("Expected 1 notification on active provider, got %d", len(active.sent))
	}
	if len(dormant.sent) != 0 {
		t.Fatalf("Expected 0 notifications on dormant provider, got %d", len(dormant.sent))
	}

	n := active.sent[0]
	if n.Type != NotifyClose {
		t.Errorf("Expected type position_close, got %s", n.Type)
	}
	if !strings.Contains(n.Title, "✅") {
		t.Errorf("Expected winner emoji in title, got %q", n.Title)
	}
	if !strings.Contains(n.Message, "closed_trailing") {
		t.Errorf("Expected reason in message, got %q", n.Message)
	}
	if n.PnL != 150 || n.PnLPercent != 15 {
		t.Errorf("Expected pnl 150/15%%, got %.2f/%.2f", n.PnL, n.PnLPercent)
	}

	if err := m.SendPositionClosed("BTCUSDT", 100, 98, -200, -20, "closed_sl"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !strings.Contains(active.sent[1].Title, "❌") {
		t.Errorf("Expected loser emoji in title, got %q", active.sent[1].Title)
	}

	names := m.Names()
	if len(names) != 2 || names[0] != "active" || names[1] != "dormant" {
		t.Errorf("Unexpected provider names: %v", names)
	}
}

// TestManagerDisabled tests the global toggle.
func TestManagerDisabled(t *testing.T) {
	active := &stubNotifier{name: "active", enabled: true}
	m := NewManager()
	m.AddNotifier(active)
	m.SetEnabled(false)

	if err := m.SendTradingHalted("daily loss limit"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(active.sent) != 0 {
		t.Fatalf("Expected no sends while disabled, got %d", len(active.sent))
	}
}

// TestSetupNotificationContent tests the setup message format.
func TestSetupNotificationContent(t *testing.T) {
	active := &stubNotifier{name: "active", enabled: true}
	m := NewManager()
	m.AddNotifier(active)

	if err := m.SendSetupTriggered("ETHUSDT", "4h", "short", "impulse_reversal", 81.2, 2410.5); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	n := active.sent[0]
	if !strings.Contains(n.Title, "🔴") {
		t.Errorf("Expected short emoji, got %q", n.Title)
	}
	if !strings.Contains(n.Message, "impulse_reversal") || !strings.Contains(n.Message, "4h") {
		t.Errorf("Expected classification and timeframe in message, got %q", n.Message)
	}
	if n.Extra["structure_stop"] != 2410.5 {
		t.Errorf("Expected structure stop in extras, got %v", n.Extra["structure_stop"])
	}
}

// TestTelegramSend tests the Telegram payload against a local server.
func TestTelegramSend(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tn := NewTelegramNotifier(TelegramConfig{BotToken: "token123", ChatID: "chat42", Enabled: true})
	tn.apiBase = server.URL

	err := tn.Send(&Notification{Title: "Opened: BTCUSDT long", Message: "Entry: 100.0000"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotPath != "/bottoken123/sendMessage" {
		t.Errorf("Unexpected path: %s", gotPath)
	}
	if gotBody["chat_id"] != "chat42" {
		t.Errorf("Expected chat_id chat42, got %v", gotBody["chat_id"])
	}
	if gotBody["parse_mode"] != "Markdown" {
		t.Errorf("Expected Markdown parse mode, got %v", gotBody["parse_mode"])
	}
	text, _ := gotBody["text"].(string)
	if !strings.Contains(text, "*Opened: BTCUSDT long*") {
		t.Errorf("Expected bold title in text, got %q", text)
	}
}

// TestTelegramDisabledWithoutCredentials tests that missing credentials keep
// the notifier off even when enabled in config.
func TestTelegramDisabledWithoutCredentials(t *testing.T) {
	tn := NewTelegramNotifier(TelegramConfig{Enabled: true})
	if tn.IsEnabled() {
		t.Fatal("Expected notifier disabled without token and chat id")
	}
	if err := tn.Send(&Notification{Title: "x"}); err != nil {
		t.Fatalf("Disabled send should be a no-op, got %v", err)
	}
}

// TestDiscordSend tests the Discord embed payload against a local server.
func TestDiscordSend(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	dn := NewDiscordNotifier(DiscordConfig{WebhookURL: server.URL, Enabled: true})

	err := dn.Send(&Notification{
		Type:       NotifyClose,
		Title:      "Closed: BTCUSDT",
		Message:    "Reason: closed_sl",
		Symbol:     "BTCUSDT",
		Price:      98,
		PnL:        -200,
		PnLPercent: -20,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	embeds, ok := gotBody["embeds"].([]interface{})
	if !ok || len(embeds) != 1 {
		t.Fatalf("Expected 1 embed, got %v", gotBody["embeds"])
	}
	embed := embeds[0].(map[string]interface{})
	if embed["title"] != "Closed: BTCUSDT" {
		t.Errorf("Unexpected embed title: %v", embed["title"])
	}
	if embed["color"] != float64(0xFF0000) {
		t.Errorf("Expected red color for a loss, got %v", embed["color"])
	}
	fields, ok := embed["fields"].([]interface{})
	if !ok || len(fields) != 3 {
		t.Fatalf("Expected symbol, price and pnl fields, got %v", embed["fields"])
	}
}

// TestDiscordServerError tests that a failing webhook surfaces an error.
func TestDiscordServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	dn := NewDiscordNotifier(DiscordConfig{WebhookURL: server.URL, Enabled: true})
	err := dn.Send(&Notification{Title: "x", Message: "y"})
	if err == nil {
		t.Fatal("Expected error on 429 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("Expected status in error, got %v", err)
	}
}
