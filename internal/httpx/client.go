// Package httpx provides the shared outbound HTTP client and JSON helpers.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	apperrors "github.com/o3willard-AI/agentpki/internal/errors"
)

const (
	connectTimeout  = 5 * time.Second
	requestTimeout  = 30 * time.Second
	keepAlive       = 60 * time.Second
	idleConnTimeout = 90 * time.Second
	maxIdlePerHost  = 16
)

// NewClient builds the outbound HTTP client used for discovery, JWKS, token
// and revocation traffic
func NewClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: keepAlive,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConnsPerHost: maxIdlePerHost,
		IdleConnTimeout:     idleConnTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   requestTimeout,
	}
}

// GetJSON fetches url and decodes the JSON response body into out
func GetJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeHTTP, fmt.Sprintf("failed to build request for %s", url), err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeHTTP, fmt.Sprintf("request to %s failed", url), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return apperrors.Upstream(fmt.Sprintf("%s returned %s", url, resp.Status))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.CodeSerialization, fmt.Sprintf("failed to decode response from %s", url), err)
	}
	return nil
}

// PostJSON posts body as JSON to url with an optional bearer token. The
// response body is discarded; non-2xx statuses surface as upstream errors.
func PostJSON(ctx context.Context, client *http.Client, url, bearer string, body interface{}) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeSerialization, "failed to encode request body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeHTTP, fmt.Sprintf("failed to build request for %s", url), err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeHTTP, fmt.Sprintf("request to %s failed", url), err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, apperrors.Upstream(resp.Status)
	}
	return resp.StatusCode, nil
}
