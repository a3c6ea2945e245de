package vault

import (
	"context"
	"testing"

	"impulse-trading-bot/config"
)

// TestDisabledModeRoundTrip tests the in-memory store used when Vault is off.
func TestDisabledModeRoundTrip(t *testing.T) {
	c, err := NewClient(config.VaultConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	ctx := context.Background()

	if err := c.StoreSecret(ctx, SecretTelegram, map[string]string{
		"bot_token": "token123",
		"chat_id":   "chat42",
	}); err != nil {
		t.Fatalf("StoreSecret failed: %v", err)
	}

	bundle, err := c.GetSecret(ctx, SecretTelegram)
	if err != nil {
		t.Fatalf("GetSecret failed: %v", err)
	}
	if bundle["bot_token"] != "token123" || bundle["chat_id"] != "chat42" {
		t.Errorf("Unexpected bundle: %v", bundle)
	}

	// Returned bundles are copies, mutation must not leak back
	bundle["bot_token"] = "tampered"
	again, err := c.GetSecret(ctx, SecretTelegram)
	if err != nil {
		t.Fatalf("GetSecret failed: %v", err)
	}
	if again["bot_token"] != "token123" {
		t.Errorf("Expected stored value unchanged, got %q", again["bot_token"])
	}

	if err := c.DeleteSecret(ctx, SecretTelegram); err != nil {
		t.Fatalf("DeleteSecret failed: %v", err)
	}
	if _, err := c.GetSecret(ctx, SecretTelegram); err == nil {
		t.Fatal("Expected error after delete")
	}
}

// TestExchangeCredentials tests the typed exchange key helpers.
func TestExchangeCredentials(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()

	if _, err := c.GetExchangeCredentials(ctx); err == nil {
		t.Fatal("Expected error before storing credentials")
	}

	creds := ExchangeCredentials{APIKey: "key", SecretKey: "secret", Testnet: true}
	if err := c.StoreExchangeCredentials(ctx, creds); err != nil {
		t.Fatalf("StoreExchangeCredentials failed: %v", err)
	}

	got, err := c.GetExchangeCredentials(ctx)
	if err != nil {
		t.Fatalf("GetExchangeCredentials failed: %v", err)
	}
	if got.APIKey != "key" || got.SecretKey != "secret" || !got.Testnet {
		t.Errorf("Unexpected credentials: %+v", got)
	}
}

// TestCacheControls tests the cache bypass and flush knobs.
func TestCacheControls(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()

	if err := c.StoreSecret(ctx, SecretAuth, map[string]string{"jwt_secret": "abc"}); err != nil {
		t.Fatalf("StoreSecret failed: %v", err)
	}

	// Bypassing the cache leaves a disabled client with nothing to serve.
	c.SetCacheEnabled(false)
	if _, err := c.GetSecret(ctx, SecretAuth); err == nil {
		t.Error("Expected a miss with the cache bypassed")
	}

	c.SetCacheEnabled(true)
	if bundle, err := c.GetSecret(ctx, SecretAuth); err != nil || bundle["jwt_secret"] != "abc" {
		t.Errorf("Expected cached bundle back, got %v (%v)", bundle, err)
	}

	c.ClearCache()
	if _, err := c.GetSecret(ctx, SecretAuth); err == nil {
		t.Error("Expected a miss after the cache was flushed")
	}
}

// TestDisabledHealth tests that a disabled client always reports healthy.
func TestDisabledHealth(t *testing.T) {
	c := NewMockClient()
	if c.IsEnabled() {
		t.Fatal("Expected mock client disabled")
	}
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Disabled health check should pass, got %v", err)
	}
}

// TestSecretPaths tests the KV v2 path layout.
func TestSecretPaths(t *testing.T) {
	c := &Client{config: config.VaultConfig{
		MountPath:  "secret",
		SecretPath: "impulse-bot",
	}}

	if got := c.secretPath(SecretAuth); got != "secret/data/impulse-bot/auth" {
		t.Errorf("Unexpected secret path: %s", got)
	}
	if got := c.metadataPath(SecretDiscord); got != "secret/metadata/impulse-bot/discord" {
		t.Errorf("Unexpected metadata path: %s", got)
	}
}
