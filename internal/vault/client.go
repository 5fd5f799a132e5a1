package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"binance-signal-engine/config"

	"github.com/hashicorp/vault/api"
)

var (
	// ErrDisabled is returned by reads when Vault is not enabled and
	// nothing was stored locally
	ErrDisabled = errors.New("vault is disabled")
	// ErrNotFound is returned when the secret path holds no credentials
	ErrNotFound = errors.New("exchange credentials not found")
)

// Credentials are the exchange API credentials stored in Vault
type Credentials struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	IsTestnet bool   `json:"is_testnet"`
}

// Valid reports whether both key halves are present
func (c Credentials) Valid() bool {
	return c.APIKey != "" && c.SecretKey != ""
}

// Client wraps the HashiCorp Vault client for the engine's single credential
// pair. The last successful read is cached.
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu     sync.RWMutex
	cached *Credentials
}

// NewClient creates a new Vault client. A disabled config yields a client
// that only serves locally stored credentials.
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

// StoreCredentials writes creds to the configured KV v2 path
func (c *Client) StoreCredentials(ctx context.Context, creds Credentials) error {
	if !creds.Valid() {
		return fmt.Errorf("refusing to store incomplete credentials")
	}

	if c.config.Enabled {
		secretData := map[string]interface{}{
			"data": map[string]interface{}{
				"api_key":    creds.APIKey,
				"secret_key": creds.SecretKey,
				"is_testnet": creds.IsTestnet,
			},
		}
		if _, err := c.client.Logical().WriteWithContext(ctx, c.dataPath(), secretData); err != nil {
			return fmt.Errorf("failed to store credentials in vault: %w", err)
		}
	}

	c.mu.Lock()
	c.cached = &creds
	c.mu.Unlock()
	return nil
}

// LoadCredentials returns the cached credentials or reads them from Vault
func (c *Client) LoadCredentials(ctx context.Context) (*Credentials, error) {
	c.mu.RLock()
	cached := c.cached
	c.mu.RUnlock()
	if cached != nil {
		out := *cached
		return &out, nil
	}

	if !c.config.Enabled {
		return nil, ErrDisabled
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.dataPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, ErrNotFound
	}

	creds, err := parseSecret(secret.Data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cached = creds
	c.mu.Unlock()

	out := *creds
	return &out, nil
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

// dataPath returns the KV v2 data path for the credentials
func (c *Client) dataPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

// parseSecret unwraps a KV v2 read response
func parseSecret(raw map[string]interface{}) (*Credentials, error) {
	data, ok := raw["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	creds := &Credentials{
		APIKey:    getString(data, "api_key"),
		SecretKey: getString(data, "secret_key"),
		IsTestnet: getBool(data, "is_testnet"),
	}
	if !creds.Valid() {
		return nil, ErrNotFound
	}
	return creds, nil
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getBool(data map[string]interface{}, key string) bool {
	if val, ok := data[key]; ok {
		switch v := val.(type) {
		case bool:
			return v
		case string:
			return v == "true"
		case json.Number:
			n, _ := v.Int64()
			return n != 0
		}
	}
	return false
}
