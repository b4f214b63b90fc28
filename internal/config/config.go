// Package config provides optional YAML configuration files for the daemons.
// File values act as defaults; explicit flags and environment override them.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the signing service configuration
type ServerConfig struct {
	ListenAddr       string   `yaml:"listen_addr"`
	OAuthIssuer      string   `yaml:"oauth_issuer"`
	Audiences        []string `yaml:"audiences"`
	RootCAPath       string   `yaml:"root_ca_path"`
	RootCAKeyPath    string   `yaml:"root_ca_key_path"`
	DiscoveryTTLSecs uint64   `yaml:"discovery_ttl_secs"`
	JWKSTTLSecs      uint64   `yaml:"jwks_ttl_secs"`
	CACacheTTLSecs   uint64   `yaml:"ca_cache_ttl_secs"`
	CRLDistURL       string   `yaml:"crl_dist_url"`
	CRLPath          string   `yaml:"crl_path"`
	LedgerPath       string   `yaml:"ledger_path"`
}

// Validate checks required server settings
func (c *ServerConfig) Validate() error {
	if c.OAuthIssuer == "" {
		return fmt.Errorf("oauth_issuer is required")
	}
	if c.RootCAPath == "" {
		return fmt.Errorf("root_ca_path is required")
	}
	if c.RootCAKeyPath == "" {
		return fmt.Errorf("root_ca_key_path is required")
	}
	if c.CRLPath == "" {
		return fmt.Errorf("crl_path is required")
	}
	if c.LedgerPath == "" {
		return fmt.Errorf("ledger_path is required")
	}
	return nil
}

// WebhookConfig holds the webhook bridge configuration
type WebhookConfig struct {
	ListenAddr        string `yaml:"listen_addr"`
	ServerBaseURL     string `yaml:"server_base_url"`
	SpoolDir          string `yaml:"spool_dir"`
	RetryAttempts     int    `yaml:"retry_attempts"`
	RetryBaseMs       uint64 `yaml:"retry_base_ms"`
	RetryMaxMs        uint64 `yaml:"retry_max_ms"`
	SpoolIntervalSecs uint64 `yaml:"spool_interval_secs"`

	ProxyBearerToken  string `yaml:"proxy_bearer_token"`
	OAuthIssuer       string `yaml:"oauth_issuer"`
	OAuthClientID     string `yaml:"oauth_client_id"`
	OAuthClientSecret string `yaml:"oauth_client_secret"`
	OAuthScope        string `yaml:"oauth_scope"`
	OAuthAudience     string `yaml:"oauth_audience"`

	RevokeReason string `yaml:"revoke_reason"`

	WebhookBasicUser     string `yaml:"webhook_basic_user"`
	WebhookBasicPassword string `yaml:"webhook_basic_password"`
	WebhookAPIKey        string `yaml:"webhook_api_key"`
	WebhookBearerToken   string `yaml:"webhook_bearer_token"`
}

// Validate checks required webhook settings
func (c *WebhookConfig) Validate() error {
	if c.ServerBaseURL == "" {
		return fmt.Errorf("server_base_url is required")
	}
	if c.SpoolDir == "" {
		return fmt.Errorf("spool_dir is required")
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must not be negative")
	}
	return nil
}

// LoadServer reads a server config file
func LoadServer(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadWebhook reads a webhook config file
func LoadWebhook(path string) (*WebhookConfig, error) {
	var cfg WebhookConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}
