package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/o3willard-AI/agentpki/internal/ca"
	"github.com/o3willard-AI/agentpki/internal/config"
	"github.com/o3willard-AI/agentpki/internal/crl"
	"github.com/o3willard-AI/agentpki/internal/httpx"
	"github.com/o3willard-AI/agentpki/internal/ledger"
	"github.com/o3willard-AI/agentpki/internal/oidc"
	"github.com/o3willard-AI/agentpki/internal/server"
	"github.com/o3willard-AI/agentpki/internal/signer"
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
		Name:  "agentpki-server",
		Usage: "OIDC-backed certificate issuance and revocation service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to YAML configuration file"},
			&cli.StringFlag{Name: "listen-addr", EnvVars: []string{"LISTEN_ADDR"}, Value: ":8000", Usage: "listen address"},
			&cli.StringFlag{Name: "oauth-issuer", EnvVars: []string{"OAUTH_ISSUER"}, Usage: "OIDC issuer URL"},
			&cli.StringFlag{Name: "kc-audiences", EnvVars: []string{"KC_AUDIENCES"}, Usage: "comma-separated expected token audiences"},
			&cli.StringFlag{Name: "root-ca-path", EnvVars: []string{"ROOT_CA_PATH"}, Usage: "path to the CA certificate PEM"},
			&cli.StringFlag{Name: "root-ca-key-path", EnvVars: []string{"ROOT_CA_KEY_PATH"}, Usage: "path to the CA private key PEM"},
			&cli.Uint64Flag{Name: "discovery-ttl-secs", EnvVars: []string{"DISCOVERY_TTL_SECS"}, Value: 3600, Usage: "discovery document cache TTL"},
			&cli.Uint64Flag{Name: "jwks-ttl-secs", EnvVars: []string{"JWKS_TTL_SECS"}, Value: 300, Usage: "JWK set cache TTL"},
			&cli.Uint64Flag{Name: "ca-cache-ttl-secs", EnvVars: []string{"CA_CACHE_TTL_SECS"}, Value: 300, Usage: "CA material cache TTL"},
			&cli.StringFlag{Name: "crl-dist-url", EnvVars: []string{"CRL_DIST_URL"}, Usage: "CRL distribution point URL embedded in issued certificates"},
			&cli.StringFlag{Name: "crl-path", EnvVars: []string{"CRL_PATH"}, Value: "/data/issuing.crl", Usage: "path of the published DER CRL"},
			&cli.StringFlag{Name: "ledger-path", EnvVars: []string{"LEDGER_PATH"}, Value: "/data/ledger.csv", Usage: "path of the issuance ledger CSV"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal("server exited", zap.Error(err))
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

	client := httpx.NewClient()

	oidcCache := oidc.NewCache(
		cfg.OAuthIssuer,
		cfg.Audiences,
		time.Duration(cfg.DiscoveryTTLSecs)*time.Second,
		time.Duration(cfg.JWKSTTLSecs)*time.Second,
		client,
		logger,
	)
	caProvider := ca.NewProvider(
		cfg.RootCAPath,
		cfg.RootCAKeyPath,
		time.Duration(cfg.CACacheTTLSecs)*time.Second,
		cfg.CRLDistURL,
		logger,
	)
	ledgerStore, err := ledger.New(cfg.LedgerPath, logger)
	if err != nil {
		return err
	}
	publisher := crl.NewPublisher(cfg.CRLPath, logger)
	csrSigner := signer.New(caProvider, ledgerStore, logger)

	srv := server.New(logger, oidcCache, caProvider, ledgerStore, publisher, csrSigner)
	return srv.Run(cfg.ListenAddr)
}

// buildConfig resolves settings: explicit flags and env win, then the config
// file, then flag defaults
func buildConfig(c *cli.Context) (*config.ServerConfig, error) {
	var file config.ServerConfig
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadServer(path)
		if err != nil {
			return nil, err
		}
		file = *loaded
	}

	cfg := &config.ServerConfig{
		ListenAddr:       resolveString(c, "listen-addr", file.ListenAddr),
		OAuthIssuer:      resolveString(c, "oauth-issuer", file.OAuthIssuer),
		RootCAPath:       resolveString(c, "root-ca-path", file.RootCAPath),
		RootCAKeyPath:    resolveString(c, "root-ca-key-path", file.RootCAKeyPath),
		DiscoveryTTLSecs: resolveUint64(c, "discovery-ttl-secs", file.DiscoveryTTLSecs),
		JWKSTTLSecs:      resolveUint64(c, "jwks-ttl-secs", file.JWKSTTLSecs),
		CACacheTTLSecs:   resolveUint64(c, "ca-cache-ttl-secs", file.CACacheTTLSecs),
		CRLDistURL:       resolveString(c, "crl-dist-url", file.CRLDistURL),
		CRLPath:          resolveString(c, "crl-path", file.CRLPath),
		LedgerPath:       resolveString(c, "ledger-path", file.LedgerPath),
	}

	cfg.Audiences = file.Audiences
	if raw := c.String("kc-audiences"); raw != "" {
		cfg.Audiences = splitAudiences(raw)
	}
	return cfg, nil
}

func splitAudiences(raw string) []string {
	var out []string
	for _, aud := range strings.Split(raw, ",") {
		if aud = strings.TrimSpace(aud); aud != "" {
			out = append(out, aud)
		}
	}
	return out
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
