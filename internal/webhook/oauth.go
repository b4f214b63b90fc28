package webhook

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/o3willard-AI/agentpki/internal/httpx"
	"github.com/o3willard-AI/agentpki/internal/oidc"
)

// OAuthConfig is the client-credentials configuration for outbound bearer
// acquisition
type OAuthConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	Scope        string
	Audience     string
}

type cachedToken struct {
	token string
	exp   time.Time
}

const (
	tokenExpirySkew    = 30 * time.Second
	defaultTokenTTL    = 300 * time.Second
	discoveryWellKnown = "/.well-known/openid-configuration"
)

// acquireToken returns the bearer for upstream calls: the static token when
// configured, a cached or freshly exchanged client-credentials token when an
// OAuth config is set, or empty for anonymous upstreams
func (b *Bridge) acquireToken(ctx context.Context) (string, error) {
	if b.staticBearer != "" {
		return b.staticBearer, nil
	}
	if b.oauth == nil {
		return "", nil
	}

	// Discovery is fetched per attempt; only inbound validation caches it
	discoveryURL := fmt.Sprintf("%s%s", trimSlash(b.oauth.Issuer), discoveryWellKnown)
	var doc oidc.DiscoveryDocument
	if err := httpx.GetJSON(ctx, b.http, discoveryURL, &doc); err != nil {
		return "", err
	}

	b.tokenMu.RLock()
	cached := b.token
	b.tokenMu.RUnlock()
	if cached != nil && time.Now().Before(cached.exp) {
		return cached.token, nil
	}

	cfg := &clientcredentials.Config{
		ClientID:     b.oauth.ClientID,
		ClientSecret: b.oauth.ClientSecret,
		TokenURL:     doc.TokenEndpoint,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	if b.oauth.Scope != "" {
		cfg.Scopes = []string{b.oauth.Scope}
	}
	if b.oauth.Audience != "" {
		cfg.EndpointParams = url.Values{"audience": {b.oauth.Audience}}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.http)
	tok, err := cfg.Token(ctx)
	if err != nil {
		return "", err
	}

	ttl := defaultTokenTTL
	if !tok.Expiry.IsZero() {
		ttl = time.Until(tok.Expiry)
	}
	exp := time.Now().Add(ttl - tokenExpirySkew)

	b.tokenMu.Lock()
	b.token = &cachedToken{token: tok.AccessToken, exp: exp}
	b.tokenMu.Unlock()
	return tok.AccessToken, nil
}

// invalidateToken drops the cached bearer, forcing a fresh exchange
func (b *Bridge) invalidateToken() {
	b.tokenMu.Lock()
	b.token = nil
	b.tokenMu.Unlock()
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
