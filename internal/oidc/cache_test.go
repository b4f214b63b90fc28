package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/o3willard-AI/agentpki/internal/pkitest"
)

type fakeIDP struct {
	server        *httptest.Server
	discoveryHits atomic.Int64
	jwksHits      atomic.Int64
}

func newFakeIDP(t *testing.T) *fakeIDP {
	t.Helper()
	idp := &fakeIDP{}

	key := pkitest.NewRSAKey(t, 2048)
	pub, err := jwk.FromRaw(key.Public())
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, "kid-1"))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))
	jwksJSON, err := json.Marshal(set)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		idp.discoveryHits.Add(1)
		fmt.Fprintf(w, `{
			"issuer": %q,
			"authorization_endpoint": %q,
			"token_endpoint": %q,
			"jwks_uri": %q,
			"grant_types_supported": ["client_credentials"]
		}`, idp.server.URL, idp.server.URL+"/auth", idp.server.URL+"/token", idp.server.URL+"/jwks")
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		idp.jwksHits.Add(1)
		w.Write(jwksJSON)
	})

	idp.server = httptest.NewServer(mux)
	t.Cleanup(idp.server.Close)
	return idp
}

func TestGetDiscoveryCaches(t *testing.T) {
	idp := newFakeIDP(t)
	cache := NewCache(idp.server.URL, nil, time.Hour, time.Hour, idp.server.Client(), zap.NewNop())
	ctx := context.Background()

	doc, err := cache.GetDiscovery(ctx)
	require.NoError(t, err)
	assert.Equal(t, idp.server.URL+"/jwks", doc.JwksURI)
	assert.Contains(t, doc.Extra, "grant_types_supported")

	_, err = cache.GetDiscovery(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), idp.discoveryHits.Load())
}

func TestGetJWKSCachesAndRefreshes(t *testing.T) {
	idp := newFakeIDP(t)
	cache := NewCache(idp.server.URL, nil, time.Hour, 50*time.Millisecond, idp.server.Client(), zap.NewNop())
	ctx := context.Background()

	set, err := cache.GetJWKS(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
	_, found := set.LookupKeyID("kid-1")
	assert.True(t, found)

	// Fresh entry is served from cache
	_, err = cache.GetJWKS(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), idp.jwksHits.Load())

	// Past the TTL the set is fetched again; discovery is still fresh
	time.Sleep(60 * time.Millisecond)
	_, err = cache.GetJWKS(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), idp.jwksHits.Load())
	assert.Equal(t, int64(1), idp.discoveryHits.Load())
}

func TestGetJWKSFetchesDiscoveryWhenCold(t *testing.T) {
	idp := newFakeIDP(t)
	cache := NewCache(idp.server.URL, nil, time.Hour, time.Hour, idp.server.Client(), zap.NewNop())

	_, err := cache.GetJWKS(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), idp.discoveryHits.Load())
	assert.Equal(t, int64(1), idp.jwksHits.Load())
}

func TestGetDiscoveryFailureSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	cache := NewCache(server.URL, nil, time.Hour, time.Hour, server.Client(), zap.NewNop())
	_, err := cache.GetDiscovery(context.Background())
	require.Error(t, err)
}
