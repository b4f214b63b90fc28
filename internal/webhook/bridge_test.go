package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/o3willard-AI/agentpki/internal/api"
)

func strptr(s string) *string { return &s }

func newTestBridge(t *testing.T, upstream string, cfg func(*Config)) *Bridge {
	t.Helper()
	c := Config{
		ServerBaseURL: upstream,
		SpoolDir:      t.TempDir(),
		RetryAttempts: 2,
		RetryBase:     time.Millisecond,
		RetryMax:      4 * time.Millisecond,
		SpoolInterval: time.Hour,
		RevokeReason:  "Keycloak event",
	}
	if cfg != nil {
		cfg(&c)
	}
	b, err := New(c, &http.Client{Timeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, err)
	return b
}

func TestForwardRevokeSucceeds(t *testing.T) {
	var got api.RevokeRequest
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/revoke", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()

	b := newTestBridge(t, upstream.URL, nil)
	req := api.RevokeRequest{Subject: strptr("uid-42"), Reason: strptr("gone")}
	require.NoError(t, b.ForwardRevokeWithRetry(context.Background(), req))
	require.NotNil(t, got.Subject)
	assert.Equal(t, "uid-42", *got.Subject)
}

func TestForwardRevokeRetriesUpToBudget(t *testing.T) {
	var calls atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer upstream.Close()

	b := newTestBridge(t, upstream.URL, func(c *Config) { c.RetryAttempts = 3 })
	err := b.ForwardRevokeWithRetry(context.Background(), api.RevokeRequest{Subject: strptr("s")})
	require.Error(t, err)
	assert.Equal(t, int64(3), calls.Load())
}

func TestForwardRevokeRecoversMidway(t *testing.T) {
	var calls atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()

	b := newTestBridge(t, upstream.URL, func(c *Config) { c.RetryAttempts = 3 })
	require.NoError(t, b.ForwardRevokeWithRetry(context.Background(), api.RevokeRequest{Subject: strptr("s")}))
	assert.Equal(t, int64(2), calls.Load())
}

func TestStaticBearerAttached(t *testing.T) {
	var authz string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()

	b := newTestBridge(t, upstream.URL, func(c *Config) { c.StaticBearer = "tok-static" })
	require.NoError(t, b.ForwardRevokeWithRetry(context.Background(), api.RevokeRequest{Subject: strptr("s")}))
	assert.Equal(t, "Bearer tok-static", authz)
}

func Test401InvalidatesCachedToken(t *testing.T) {
	b := newTestBridge(t, "http://unused", nil)
	b.token = &cachedToken{token: "stale", exp: time.Now().Add(time.Hour)}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer upstream.Close()
	b.serverBaseURL = upstream.URL

	err := b.trySend(context.Background(), api.RevokeRequest{Subject: strptr("s")})
	require.Error(t, err)

	b.tokenMu.RLock()
	defer b.tokenMu.RUnlock()
	assert.Nil(t, b.token)
}

func TestAcquireTokenClientCredentials(t *testing.T) {
	var tokenCalls atomic.Int64
	mux := http.NewServeMux()
	var serverURL string
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 serverURL,
			"authorization_endpoint": serverURL + "/auth",
			"token_endpoint":         serverURL + "/token",
			"jwks_uri":               serverURL + "/jwks",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "svc-client", user)
		require.Equal(t, "svc-secret", pass)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		require.Equal(t, "revoke-audience", r.Form.Get("audience"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-cc",
			"token_type":   "bearer",
			"expires_in":   600,
		})
	})
	idp := httptest.NewServer(mux)
	defer idp.Close()
	serverURL = idp.URL

	b := newTestBridge(t, "http://unused", func(c *Config) {
		c.OAuth = &OAuthConfig{
			Issuer:       idp.URL,
			ClientID:     "svc-client",
			ClientSecret: "svc-secret",
			Audience:     "revoke-audience",
		}
	})

	tok, err := b.acquireToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-cc", tok)

	// Cached until near expiry; only discovery is re-fetched
	tok, err = b.acquireToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-cc", tok)
	assert.Equal(t, int64(1), tokenCalls.Load())
}

func TestAcquireTokenAnonymous(t *testing.T) {
	b := newTestBridge(t, "http://unused", nil)
	tok, err := b.acquireToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestSpoolQueueAndCancel(t *testing.T) {
	b := newTestBridge(t, "http://unused", nil)

	require.NoError(t, b.QueueRevoke(api.RevokeRequest{Subject: strptr("uid-42"), Reason: strptr("r")}))
	require.NoError(t, b.QueueRevoke(api.RevokeRequest{Subject: strptr("uid-99")}))

	entries, err := os.ReadDir(b.spoolDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Regexp(t, `^revoke-\d+-[0-9a-f]{16}\.json$`, e.Name())
	}

	n, err := b.CancelPendingForSubject("uid-42")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries, err = os.ReadDir(b.spoolDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	item, err := readSpoolItem(filepath.Join(b.spoolDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "uid-99", *item.Req.Subject)
}

func TestSpoolFileFormat(t *testing.T) {
	b := newTestBridge(t, "http://unused", nil)
	require.NoError(t, b.QueueRevoke(api.RevokeRequest{Subject: strptr("uid-42"), Reason: strptr("r")}))

	entries, err := os.ReadDir(b.spoolDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(b.spoolDir, entries[0].Name()))
	require.NoError(t, err)
	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Contains(t, decoded, "req")
}

func TestProcessSpoolForwardsAndDeletes(t *testing.T) {
	var calls atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()

	b := newTestBridge(t, upstream.URL, nil)
	require.NoError(t, b.QueueRevoke(api.RevokeRequest{Subject: strptr("uid-42")}))

	b.processSpoolOnce(context.Background())

	entries, err := os.ReadDir(b.spoolDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, int64(1), calls.Load())
}

func TestProcessSpoolDeletesInvalidItems(t *testing.T) {
	b := newTestBridge(t, "http://unused", nil)
	require.NoError(t, os.WriteFile(filepath.Join(b.spoolDir, "revoke-1-aaaaaaaaaaaaaaaa.json"), []byte("{broken"), 0644))

	b.processSpoolOnce(context.Background())

	entries, err := os.ReadDir(b.spoolDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessSpoolKeepsFailingItems(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer upstream.Close()

	b := newTestBridge(t, upstream.URL, nil)
	require.NoError(t, b.QueueRevoke(api.RevokeRequest{Subject: strptr("uid-42")}))

	b.processSpoolOnce(context.Background())

	entries, err := os.ReadDir(b.spoolDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSpoolIgnoresTmpFiles(t *testing.T) {
	b := newTestBridge(t, "http://unused", nil)
	item, err := json.Marshal(SpoolItem{Req: api.RevokeRequest{Subject: strptr("uid-42")}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(b.spoolDir, "revoke-1-bbbbbbbbbbbbbbbb.json.tmp"), item, 0644))

	b.processSpoolOnce(context.Background())
	n, err := b.CancelPendingForSubject("uid-42")
	require.NoError(t, err)
	assert.Zero(t, n)

	entries, err := os.ReadDir(b.spoolDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRetryDelaysDouble(t *testing.T) {
	var stamps []time.Time
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stamps = append(stamps, time.Now())
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer upstream.Close()

	b := newTestBridge(t, upstream.URL, func(c *Config) {
		c.RetryAttempts = 3
		c.RetryBase = 20 * time.Millisecond
		c.RetryMax = time.Second
	})

	err := b.ForwardRevokeWithRetry(context.Background(), api.RevokeRequest{Subject: strptr("s")})
	require.Error(t, err)
	require.Len(t, stamps, 3)

	first := stamps[1].Sub(stamps[0])
	second := stamps[2].Sub(stamps[1])
	assert.GreaterOrEqual(t, first, 20*time.Millisecond)
	assert.GreaterOrEqual(t, second, 40*time.Millisecond)
}
