package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/o3willard-AI/agentpki/internal/config"
	"github.com/o3willard-AI/agentpki/internal/httpx"
	"github.com/o3willard-AI/agentpki/internal/webhook"
)

var logger *zap.Logger

func init() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	app := &cli.App{
		Name:  "agentpki-webhook",
		Usage: "Webhook bridge forwarding identity events as revocations with retry and spool",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to YAML configuration file"},
			&cli.StringFlag{Name: "listen-addr", EnvVars: []string{"LISTEN_ADDR"}, Value: ":8001", Usage: "listen address"},
			&cli.StringFlag{Name: "server-base-url", EnvVars: []string{"SERVER_BASE_URL"}, Usage: "base URL of the certificate service"},
			&cli.StringFlag{Name: "spool-dir", EnvVars: []string{"SPOOL_DIR"}, Value: "/data/spool", Usage: "directory for queued revocations"},
			&cli.IntFlag{Name: "retry-attempts", EnvVars: []string{"RETRY_ATTEMPTS"}, Value: 5, Usage: "upstream POST attempts per forward"},
			&cli.Uint64Flag{Name: "retry-base-ms", EnvVars: []string{"RETRY_BASE_MS"}, Value: 500, Usage: "initial retry delay"},
			&cli.Uint64Flag{Name: "retry-max-ms", EnvVars: []string{"RETRY_MAX_MS"}, Value: 8000, Usage: "retry delay cap"},
			&cli.Uint64Flag{Name: "spool-interval-secs", EnvVars: []string{"SPOOL_INTERVAL_SECS"}, Value: 10, Usage: "spool processor cycle interval"},
			&cli.StringFlag{Name: "proxy-bearer-token", EnvVars: []string{"PROXY_BEARER_TOKEN"}, Usage: "static bearer for upstream calls"},
			&cli.StringFlag{Name: "oauth-issuer", EnvVars: []string{"OAUTH_ISSUER"}, Usage: "OIDC issuer for client-credentials tokens"},
			&cli.StringFlag{Name: "oauth-client-id", EnvVars: []string{"OAUTH_CLIENT_ID"}, Usage: "OAuth2 client id"},
			&cli.StringFlag{Name: "oauth-client-secret", EnvVars: []string{"OAUTH_CLIENT_SECRET"}, Usage: "OAuth2 client secret"},
			&cli.StringFlag{Name: "oauth-scope", EnvVars: []string{"OAUTH_SCOPE"}, Usage: "optional token scope"},
			&cli.StringFlag{Name: "oauth-audience", EnvVars: []string{"OAUTH_AUDIENCE"}, Usage: "optional token audience parameter"},
			&cli.StringFlag{Name: "keycloak-revoke-reason", EnvVars: []string{"KEYCLOAK_REVOKE_REASON"}, Value: "Keycloak event", Usage: "reason attached to synthesized revocations"},
			&cli.StringFlag{Name: "webhook-basic-user", EnvVars: []string{"WEBHOOK_BASIC_USER"}, Usage: "inbound basic auth user"},
			&cli.StringFlag{Name: "webhook-basic-password", EnvVars: []string{"WEBHOOK_BASIC_PASSWORD"}, Usage: "inbound basic auth password"},
			&cli.StringFlag{Name: "webhook-api-key", EnvVars: []string{"WEBHOOK_API_KEY"}, Usage: "inbound X-API-KEY value"},
			&cli.StringFlag{Name: "webhook-bearer-token", EnvVars: []string{"WEBHOOK_BEARER_TOKEN"}, Usage: "inbound bearer token"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal("webhook exited", zap.Error(err))
	}
}

func run(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	bridgeCfg := webhook.Config{
		ServerBaseURL: cfg.ServerBaseURL,
		SpoolDir:      cfg.SpoolDir,
		RetryAttempts: cfg.RetryAttempts,
		RetryBase:     time.Duration(cfg.RetryBaseMs) * time.Millisecond,
		RetryMax:      time.Duration(cfg.RetryMaxMs) * time.Millisecond,
		SpoolInterval: time.Duration(cfg.SpoolIntervalSecs) * time.Second,
		StaticBearer:  cfg.ProxyBearerToken,
		RevokeReason:  cfg.RevokeReason,
		Inbound: webhook.Credentials{
			BasicUser:     cfg.WebhookBasicUser,
			BasicPassword: cfg.WebhookBasicPassword,
			APIKey:        cfg.WebhookAPIKey,
			Bearer:        cfg.WebhookBearerToken,
		},
	}
	if cfg.OAuthIssuer != "" && cfg.OAuthClientID != "" && cfg.OAuthClientSecret != "" {
		bridgeCfg.OAuth = &webhook.OAuthConfig{
			Issuer:       cfg.OAuthIssuer,
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			Scope:        cfg.OAuthScope,
			Audience:     cfg.OAuthAudience,
		}
	}

	bridge, err := webhook.New(bridgeCfg, httpx.NewClient(), logger)
	if err != nil {
		return err
	}

	go bridge.RunSpoolProcessor(context.Background())
	return bridge.Run(cfg.ListenAddr)
}

// buildConfig resolves settings: explicit flags and env win, then the config
// file, then flag defaults
func buildConfig(c *cli.Context) (*config.WebhookConfig, error) {
	var file config.WebhookConfig
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadWebhook(path)
		if err != nil {
			return nil, err
		}
		file = *loaded
	}

	cfg := &config.WebhookConfig{
		ListenAddr:           resolveString(c, "listen-addr", file.ListenAddr),
		ServerBaseURL:        resolveString(c, "server-base-url", file.ServerBaseURL),
		SpoolDir:             resolveString(c, "spool-dir", file.SpoolDir),
		RetryBaseMs:          resolveUint64(c, "retry-base-ms", file.RetryBaseMs),
		RetryMaxMs:           resolveUint64(c, "retry-max-ms", file.RetryMaxMs),
		SpoolIntervalSecs:    resolveUint64(c, "spool-interval-secs", file.SpoolIntervalSecs),
		ProxyBearerToken:     resolveString(c, "proxy-bearer-token", file.ProxyBearerToken),
		OAuthIssuer:          resolveString(c, "oauth-issuer", file.OAuthIssuer),
		OAuthClientID:        resolveString(c, "oauth-client-id", file.OAuthClientID),
		OAuthClientSecret:    resolveString(c, "oauth-client-secret", file.OAuthClientSecret),
		OAuthScope:           resolveString(c, "oauth-scope", file.OAuthScope),
		OAuthAudience:        resolveString(c, "oauth-audience", file.OAuthAudience),
		RevokeReason:         resolveString(c, "keycloak-revoke-reason", file.RevokeReason),
		WebhookBasicUser:     resolveString(c, "webhook-basic-user", file.WebhookBasicUser),
		WebhookBasicPassword: resolveString(c, "webhook-basic-password", file.WebhookBasicPassword),
		WebhookAPIKey:        resolveString(c, "webhook-api-key", file.WebhookAPIKey),
		WebhookBearerToken:   resolveString(c, "webhook-bearer-token", file.WebhookBearerToken),
	}

	cfg.RetryAttempts = c.Int("retry-attempts")
	if !c.IsSet("retry-attempts") && file.RetryAttempts > 0 {
		cfg.RetryAttempts = file.RetryAttempts
	}
	return cfg, nil
}

func resolveString(c *cli.Context, name, fileVal string) string {
	if c.IsSet(name) || fileVal == "" {
		return c.String(name)
	}
	return fileVal
}

func resolveUint64(c *cli.Context, name string, fileVal uint64) uint64 {
	if c.IsSet(name) || fileVal == 0 {
		return c.Uint64(name)
	}
	return fileVal
}
