package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"tradevera/config"
)

// ServiceSecrets holds the credentials the service reads from Vault at startup
type ServiceSecrets struct {
	JWTSecret        string `json:"jwt_secret"`
	DatabasePassword string `json:"database_password"`
	RedisPassword    string `json:"redis_password"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cache  *ServiceSecrets
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// ServiceSecrets reads the KV v2 secret at mount/data/secret_path. The result
// is cached for the life of the client.
func (c *Client) ServiceSecrets(ctx context.Context) (*ServiceSecrets, error) {
	c.mu.RLock()
	if c.cache != nil {
		s := *c.cache
		c.mu.RUnlock()
		return &s, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return &ServiceSecrets{}, nil
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read service secrets from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("service secrets not found at %s", c.secretPath())
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	s := &ServiceSecrets{
		JWTSecret:        getString(data, "jwt_secret"),
		DatabasePassword: getString(data, "database_password"),
		RedisPassword:    getString(data, "redis_password"),
	}

	c.mu.Lock()
	cached := *s
	c.cache = &cached
	c.mu.Unlock()

	return s, nil
}

// ApplyTo overwrites the matching fields of cfg with every non-empty secret.
func (c *Client) ApplyTo(ctx context.Context, cfg *config.Config) error {
	if !c.config.Enabled {
		return nil
	}

	s, err := c.ServiceSecrets(ctx)
	if err != nil {
		return err
	}
	if s.JWTSecret != "" {
		cfg.AuthConfig.JWTSecret = s.JWTSecret
	}
	if s.DatabasePassword != "" {
		cfg.DatabaseConfig.Password = s.DatabasePassword
	}
	if s.RedisPassword != "" {
		cfg.RedisConfig.Password = s.RedisPassword
	}
	return nil
}

// ClearCache drops the cached secrets so the next read goes to Vault
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = nil
	c.mu.Unlock()
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

// secretPath returns the KV v2 data path for the service secret
func (c *Client) secretPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
