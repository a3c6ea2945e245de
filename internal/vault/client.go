// Package vault reads and writes named secret bundles in HashiCorp Vault.
// With Vault disabled the client degrades to an in-memory map, which keeps
// development and tests free of a running Vault server.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"impulse-trading-bot/config"
)

// Well-known secret bundle names
const (
	SecretExchange = "exchange"
	SecretTelegram = "telegram"
	SecretDiscord  = "discord"
	SecretAuth     = "auth"
)

// ExchangeCredentials holds the exchange API key pair
type ExchangeCredentials struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	Testnet   bool   `json:"testnet"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client       *api.Client
	config       config.VaultConfig
	mu           sync.RWMutex
	cache        map[string]map[string]string // secret name -> key/value bundle
	cacheEnabled bool
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config:       cfg,
			cache:        make(map[string]map[string]string),
			cacheEnabled: true,
		}, nil
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

	return &Client{
		client:       client,
		config:       cfg,
		cache:        make(map[string]map[string]string),
		cacheEnabled: true,
	}, nil
}

// StoreSecret writes a named secret bundle
func (c *Client) StoreSecret(ctx context.Context, name string, data map[string]string) error {
	if !c.config.Enabled {
		// In-memory only, for development and tests
		c.mu.Lock()
		c.cache[name] = cloneBundle(data)
		c.mu.Unlock()
		return nil
	}

	payload := make(map[string]interface{}, len(data))
	for k, v := range data {
		payload[k] = v
	}
	secretData := map[string]interface{}{
		"data": payload,
	}

	if _, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(name), secretData); err != nil {
		return fmt.Errorf("failed to store secret %q in vault: %w", name, err)
	}

	if c.cacheEnabled {
		c.mu.Lock()
		c.cache[name] = cloneBundle(data)
		c.mu.Unlock()
	}

	return nil
}

// GetSecret reads a named secret bundle
func (c *Client) GetSecret(ctx context.Context, name string) (map[string]string, error) {
	if c.cacheEnabled {
		c.mu.RLock()
		if cached, ok := c.cache[name]; ok {
			c.mu.RUnlock()
			return cloneBundle(cached), nil
		}
		c.mu.RUnlock()
	}

	if !c.config.Enabled {
		return nil, fmt.Errorf("secret %q not found and vault is disabled", name)
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read secret %q from vault: %w", name, err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret %q not found", name)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format for %q", name)
	}

	bundle := make(map[string]string, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			bundle[k] = s
		}
	}

	if c.cacheEnabled {
		c.mu.Lock()
		c.cache[name] = cloneBundle(bundle)
		c.mu.Unlock()
	}

	return bundle, nil
}

// DeleteSecret removes a named secret bundle
func (c *Client) DeleteSecret(ctx context.Context, name string) error {
	c.mu.Lock()
	delete(c.cache, name)
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	if _, err := c.client.Logical().DeleteWithContext(ctx, c.metadataPath(name)); err != nil {
		return fmt.Errorf("failed to delete secret %q from vault: %w", name, err)
	}

	return nil
}

// StoreExchangeCredentials writes the exchange API key pair
func (c *Client) StoreExchangeCredentials(ctx context.Context, creds ExchangeCredentials) error {
	testnet := "false"
	if creds.Testnet {
		testnet = "true"
	}
	return c.StoreSecret(ctx, SecretExchange, map[string]string{
		"api_key":    creds.APIKey,
		"secret_key": creds.SecretKey,
		"testnet":    testnet,
	})
}

// GetExchangeCredentials reads the exchange API key pair
func (c *Client) GetExchangeCredentials(ctx context.Context) (*ExchangeCredentials, error) {
	bundle, err := c.GetSecret(ctx, SecretExchange)
	if err != nil {
		return nil, err
	}
	return &ExchangeCredentials{
		APIKey:    bundle["api_key"],
		SecretKey: bundle["secret_key"],
		Testnet:   bundle["testnet"] == "true",
	}, nil
}

// ClearCache clears the in-memory cache
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]map[string]string)
	c.mu.Unlock()
}

// SetCacheEnabled enables or disables caching
func (c *Client) SetCacheEnabled(enabled bool) {
	c.mu.Lock()
	c.cacheEnabled = enabled
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

// secretPath returns the KV v2 data path for a named secret
func (c *Client) secretPath(name string) string {
	return fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, name)
}

// metadataPath returns the KV v2 metadata path for a named secret
func (c *Client) metadataPath(name string) string {
	return fmt.Sprintf("%s/metadata/%s/%s", c.config.MountPath, c.config.SecretPath, name)
}

func cloneBundle(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// NewMockClient creates a disabled-mode client for testing
func NewMockClient() *Client {
	return &Client{
		config: config.VaultConfig{
			Enabled: false,
		},
		cache:        make(map[string]map[string]string),
		cacheEnabled: true,
	}
}
