// Package oidc implements cached OIDC discovery, JWKS retrieval and bearer
// token validation against the identity provider.
package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.uber.org/zap"

	apperrors "github.com/o3willard-AI/agentpki/internal/errors"
	"github.com/o3willard-AI/agentpki/internal/httpx"
)

const (
	// DefaultDiscoveryTTL is how long a fetched discovery document stays fresh
	DefaultDiscoveryTTL = 3600 * time.Second
	// DefaultJWKSTTL is how long a fetched JWK set stays fresh
	DefaultJWKSTTL = 300 * time.Second
)

// Cache holds the discovery document and JWK set with independent TTLs.
// Both entries are guarded by a single lock held across the freshness check
// and any fetch, so concurrent misses fetch once.
type Cache struct {
	issuer       string
	audiences    []string
	discoveryTTL time.Duration
	jwksTTL      time.Duration
	http         *http.Client
	logger       *zap.Logger

	mu          sync.Mutex
	discovery   *DiscoveryDocument
	discoveryAt time.Time
	jwks        jwk.Set
	jwksAt      time.Time
}

// NewCache creates an OIDC cache for the given issuer. A nil audience list
// disables audience enforcement during token validation.
func NewCache(issuer string, audiences []string, discoveryTTL, jwksTTL time.Duration, client *http.Client, logger *zap.Logger) *Cache {
	if discoveryTTL <= 0 {
		discoveryTTL = DefaultDiscoveryTTL
	}
	if jwksTTL <= 0 {
		jwksTTL = DefaultJWKSTTL
	}
	return &Cache{
		issuer:       issuer,
		audiences:    audiences,
		discoveryTTL: discoveryTTL,
		jwksTTL:      jwksTTL,
		http:         client,
		logger:       logger,
	}
}

// Audiences returns the expected audience set, nil when unenforced
func (c *Cache) Audiences() []string {
	return c.audiences
}

// GetDiscovery returns the cached discovery document, fetching it from the
// issuer when absent or past its TTL
func (c *Cache) GetDiscovery(ctx context.Context) (*DiscoveryDocument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discoveryLocked(ctx)
}

func (c *Cache) discoveryLocked(ctx context.Context) (*DiscoveryDocument, error) {
	now := time.Now()
	if c.discovery != nil && now.Sub(c.discoveryAt) < c.discoveryTTL {
		return c.discovery, nil
	}

	url := fmt.Sprintf("%s/.well-known/openid-configuration", c.issuer)
	var doc DiscoveryDocument
	if err := httpx.GetJSON(ctx, c.http, url, &doc); err != nil {
		return nil, err
	}
	c.logger.Debug("fetched discovery document",
		zap.String("issuer", c.issuer),
		zap.String("jwks_uri", doc.JwksURI),
	)
	c.discovery = &doc
	c.discoveryAt = time.Now()
	return c.discovery, nil
}

// GetJWKS returns the cached JWK set, refreshing it (and, if needed, the
// discovery document) when past its TTL
func (c *Cache) GetJWKS(ctx context.Context) (jwk.Set, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.jwks != nil && now.Sub(c.jwksAt) < c.jwksTTL {
		return c.jwks, nil
	}

	doc, err := c.discoveryLocked(ctx)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := httpx.GetJSON(ctx, c.http, doc.JwksURI, &raw); err != nil {
		return nil, err
	}
	set, err := jwk.Parse(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSerialization, "failed to parse JWK set", err)
	}
	c.logger.Debug("fetched JWK set", zap.Int("keys", set.Len()))
	c.jwks = set
	c.jwksAt = time.Now()
	return c.jwks, nil
}
