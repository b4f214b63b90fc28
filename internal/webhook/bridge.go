// Package webhook bridges identity-provider lifecycle events into
// certificate revocations, with bounded-retry forwarding and a disk spool
// for events that cannot be delivered immediately.
package webhook

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/o3willard-AI/agentpki/internal/api"
	apperrors "github.com/o3willard-AI/agentpki/internal/errors"
	"github.com/o3willard-AI/agentpki/internal/httpx"
)

// Config carries the bridge settings
type Config struct {
	ServerBaseURL string
	SpoolDir      string
	RetryAttempts int
	RetryBase     time.Duration
	RetryMax      time.Duration
	SpoolInterval time.Duration
	StaticBearer  string
	OAuth         *OAuthConfig
	RevokeReason  string
	Inbound       Credentials
}

// Bridge forwards revocations upstream and owns the spool directory
type Bridge struct {
	logger *zap.Logger
	http   *http.Client

	serverBaseURL string
	retryAttempts int
	retryBase     time.Duration
	retryMax      time.Duration
	spoolDir      string
	spoolInterval time.Duration
	revokeReason  string
	inbound       Credentials

	staticBearer string
	oauth        *OAuthConfig
	tokenMu      sync.RWMutex
	token        *cachedToken
}

// New creates the bridge and ensures the spool directory exists
func New(cfg Config, client *http.Client, logger *zap.Logger) (*Bridge, error) {
	if err := os.MkdirAll(cfg.SpoolDir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIo, "failed to create spool directory", err)
	}
	return &Bridge{
		logger:        logger,
		http:          client,
		serverBaseURL: trimSlash(cfg.ServerBaseURL),
		retryAttempts: cfg.RetryAttempts,
		retryBase:     cfg.RetryBase,
		retryMax:      cfg.RetryMax,
		spoolDir:      cfg.SpoolDir,
		spoolInterval: cfg.SpoolInterval,
		revokeReason:  cfg.RevokeReason,
		inbound:       cfg.Inbound,
		staticBearer:  cfg.StaticBearer,
		oauth:         cfg.OAuth,
	}, nil
}

// ForwardRevokeWithRetry posts the revocation upstream, retrying with
// exponential backoff (doubling from the base, capped) up to the configured
// attempt budget
func (b *Bridge) ForwardRevokeWithRetry(ctx context.Context, req api.RevokeRequest) error {
	attempts := b.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.retryBase
	policy.MaxInterval = b.retryMax
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	policy.Reset()

	return backoff.Retry(func() error {
		return b.trySend(ctx, req)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx))
}

func (b *Bridge) trySend(ctx context.Context, req api.RevokeRequest) error {
	token, err := b.acquireToken(ctx)
	if err != nil {
		return err
	}

	status, err := httpx.PostJSON(ctx, b.http, b.serverBaseURL+"/api/revoke", token, req)
	if status == http.StatusUnauthorized {
		b.invalidateToken()
	}
	return err
}
