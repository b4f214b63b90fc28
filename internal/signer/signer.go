// Package signer mints client certificates from bearer-authenticated CSRs.
// The authenticated OIDC subject names the certificate; the CSR contributes
// only its public key.
package signer

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/o3willard-AI/agentpki/internal/ca"
	apperrors "github.com/o3willard-AI/agentpki/internal/errors"
	"github.com/o3willard-AI/agentpki/internal/ledger"
	"github.com/o3willard-AI/agentpki/internal/oidc"
)

const (
	// notBeforeSkew backdates issued certificates to absorb clock skew
	notBeforeSkew = 300 * time.Second
	validityDays  = 365
	serialBytes   = 16
)

// Request is the sign-CSR request body
type Request struct {
	CSRPEM string `json:"csr_pem"`
}

// Response carries the issued certificate and the CA certificate, both PEM
type Response struct {
	CertificatePEM string `json:"certificate_pem"`
	CACertPEM      string `json:"ca_cert_pem"`
}

// Signer verifies CSRs, enforces key policy, mints certificates and journals
// issuances
type Signer struct {
	ca     *ca.Provider
	ledger *ledger.Ledger
	logger *zap.Logger
}

// New creates a signer over the given CA provider and ledger
func New(provider *ca.Provider, l *ledger.Ledger, logger *zap.Logger) *Signer {
	return &Signer{ca: provider, ledger: l, logger: logger}
}

// Sign validates the CSR, mints a certificate bound to the authenticated
// claims and records the issuance. Policy failures map to 400 at the HTTP
// boundary; everything after the policy gate is infrastructure (500).
func (s *Signer) Sign(ctx context.Context, req Request, claims *oidc.Claims) (*Response, error) {
	csr, err := parseCSR(req.CSRPEM)
	if err != nil {
		return nil, err
	}
	if err := enforceKeyPolicy(csr.PublicKey); err != nil {
		return nil, err
	}

	material, err := s.ca.Get()
	if err != nil {
		return nil, err
	}

	certDER, serialHex, err := s.mint(csr, material, claims)
	if err != nil {
		return nil, err
	}

	realm := extractRealm(claims.Issuer)
	if err := s.ledger.RecordIssued(ctx, claims.Subject, serialHex, claims.Issuer, realm); err != nil {
		return nil, err
	}

	s.logger.Info("issued certificate",
		zap.String("subject", claims.Subject),
		zap.String("serial", serialHex),
		zap.String("realm", realm),
	)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	return &Response{
		CertificatePEM: string(certPEM),
		CACertPEM:      string(material.CertPEM),
	}, nil
}

func parseCSR(csrPEM string) (*x509.CertificateRequest, error) {
	block, _ := pem.Decode([]byte(csrPEM))
	if block == nil {
		return nil, apperrors.New(apperrors.CodeSerialization, "failed to decode CSR PEM")
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSerialization, "failed to parse CSR", err)
	}
	if csr.PublicKey == nil {
		return nil, apperrors.CsrMissingPublicKey()
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, apperrors.CsrVerificationFailed()
	}
	return csr, nil
}

func (s *Signer) mint(csr *x509.CertificateRequest, material *ca.Material, claims *oidc.Claims) ([]byte, string, error) {
	serial, err := newSerialNumber()
	if err != nil {
		return nil, "", err
	}
	ski, err := subjectKeyID(csr.PublicKey)
	if err != nil {
		return nil, "", err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: claims.Subject},
		NotBefore:             now.Add(-notBeforeSkew),
		NotAfter:              now.AddDate(0, 0, validityDays),
		BasicConstraintsValid: true,
		IsCA:                  false,
		SubjectKeyId:          ski,
		KeyUsage:              keyUsageFor(csr.PublicKey),
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		DNSNames:              []string{claims.Subject},
		URIs:                  []*url.URL{identityURI(claims.Issuer, claims.Subject)},
	}
	if u := s.ca.CRLDistURL(); u != "" {
		template.CRLDistributionPoints = []string{u}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, material.Cert, csr.PublicKey, material.Key)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.CodeSerialization, "failed to create certificate", err)
	}
	return der, fmt.Sprintf("%X", serial), nil
}

// newSerialNumber returns a 128-bit random serial with the MSB cleared so the
// integer is positive; an all-zero draw is bumped to 1
func newSerialNumber() (*big.Int, error) {
	buf := make([]byte, serialBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIo, "failed to generate serial number", err)
	}
	buf[0] &= 0x7F
	allZero := true
	for _, b := range buf {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		buf[0] = 1
	}
	return new(big.Int).SetBytes(buf), nil
}

// subjectKeyID is the SHA-1 of the subjectPublicKey BIT STRING (RFC 5280
// method 1)
func subjectKeyID(pub interface{}) ([]byte, error) {
	spki, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSerialization, "failed to marshal public key", err)
	}
	var decoded struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(spki, &decoded); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSerialization, "failed to decode public key", err)
	}
	sum := sha1.Sum(decoded.PublicKey.Bytes)
	return sum[:], nil
}

func keyUsageFor(pub interface{}) x509.KeyUsage {
	usage := x509.KeyUsageDigitalSignature
	if _, ok := pub.(*rsa.PublicKey); ok {
		usage |= x509.KeyUsageKeyEncipherment
	}
	return usage
}

// identityURI binds the issuer realm and the subject into a single SAN URI:
// "{iss}#sub={sub}" when the issuer parses as a URL, else a URN form
func identityURI(issuer, subject string) *url.URL {
	if u, err := url.Parse(issuer); err == nil && u.IsAbs() {
		bound := *u
		bound.Fragment = "sub=" + subject
		return &bound
	}
	return &url.URL{Opaque: "keycloak:sub:" + subject, Scheme: "urn"}
}

// extractRealm returns the path segment immediately following "realms/" in
// the issuer URL, matching case-insensitively, or the empty string
func extractRealm(issuer string) string {
	u, err := url.Parse(issuer)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, seg := range segments {
		if strings.EqualFold(seg, "realms") && i+1 < len(segments) && segments[i+1] != "" {
			return segments[i+1]
		}
	}
	return ""
}
