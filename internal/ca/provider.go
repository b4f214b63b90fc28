// Package ca loads and caches the issuing CA certificate and private key.
package ca

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/o3willard-AI/agentpki/internal/errors"
)

// DefaultCacheTTL is how long loaded CA material stays fresh
const DefaultCacheTTL = 300 * time.Second

// Material is a loaded CA certificate and signing key pair
type Material struct {
	Cert    *x509.Certificate
	Key     crypto.Signer
	CertPEM []byte
}

// Provider serves cached CA material, re-reading both PEM files as a pair
// when the TTL expires. A stale certificate alongside a rotated key surfaces
// as an error rather than a mismatched pair.
type Provider struct {
	certPath   string
	keyPath    string
	ttl        time.Duration
	crlDistURL string
	logger     *zap.Logger

	mu       sync.Mutex
	material *Material
	loadedAt time.Time
}

// NewProvider creates a CA provider over the given PEM file paths
func NewProvider(certPath, keyPath string, ttl time.Duration, crlDistURL string, logger *zap.Logger) *Provider {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Provider{
		certPath:   certPath,
		keyPath:    keyPath,
		ttl:        ttl,
		crlDistURL: crlDistURL,
		logger:     logger,
	}
}

// CRLDistURL returns the configured CRL distribution point URL, empty when
// none is configured
func (p *Provider) CRLDistURL() string {
	return p.crlDistURL
}

// Get returns the cached CA material, reloading cert and key from disk
// together when the cache is stale
func (p *Provider) Get() (*Material, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.material != nil && now.Sub(p.loadedAt) < p.ttl {
		return p.material, nil
	}

	certPEM, err := os.ReadFile(p.certPath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIo, fmt.Sprintf("failed to read CA certificate %s", p.certPath), err)
	}
	keyPEM, err := os.ReadFile(p.keyPath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIo, fmt.Sprintf("failed to read CA private key %s", p.keyPath), err)
	}

	cert, err := parseCertificatePEM(certPEM)
	if err != nil {
		return nil, err
	}
	key, err := parsePrivateKeyPEM(keyPEM)
	if err != nil {
		return nil, err
	}
	if pub, ok := key.Public().(interface{ Equal(crypto.PublicKey) bool }); !ok || !pub.Equal(cert.PublicKey) {
		return nil, apperrors.New(apperrors.CodeSerialization, "CA certificate does not match CA private key")
	}

	p.material = &Material{Cert: cert, Key: key, CertPEM: certPEM}
	p.loadedAt = time.Now()
	p.logger.Info("loaded CA material",
		zap.String("subject", cert.Subject.String()),
		zap.Time("not_after", cert.NotAfter),
	)
	return p.material, nil
}

func parseCertificatePEM(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, apperrors.New(apperrors.CodeSerialization, "failed to decode CA certificate PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSerialization, "failed to parse CA certificate", err)
	}
	return cert, nil
}

func parsePrivateKeyPEM(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, apperrors.New(apperrors.CodeSerialization, "failed to decode CA private key PEM")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		switch k := key.(type) {
		case *rsa.PrivateKey:
			return k, nil
		case *ecdsa.PrivateKey:
			return k, nil
		case ed25519.PrivateKey:
			return k, nil
		default:
			return nil, apperrors.New(apperrors.CodeSerialization, "unsupported CA private key type")
		}
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, apperrors.New(apperrors.CodeSerialization, "failed to parse CA private key")
}
