// Package server exposes the HTTP surface of the certificate signing service.
package server

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/o3willard-AI/agentpki/internal/ca"
	"github.com/o3willard-AI/agentpki/internal/crl"
	"github.com/o3willard-AI/agentpki/internal/ledger"
	"github.com/o3willard-AI/agentpki/internal/metrics"
	"github.com/o3willard-AI/agentpki/internal/oidc"
	"github.com/o3willard-AI/agentpki/internal/signer"
)

// Server wires the trust-plane components behind the HTTP routes
type Server struct {
	logger *zap.Logger
	oidc   *oidc.Cache
	ca     *ca.Provider
	ledger *ledger.Ledger
	crl    *crl.Publisher
	signer *signer.Signer
}

// New assembles the server from its collaborators
func New(logger *zap.Logger, oidcCache *oidc.Cache, caProvider *ca.Provider, l *ledger.Ledger, publisher *crl.Publisher, s *signer.Signer) *Server {
	return &Server{
		logger: logger,
		oidc:   oidcCache,
		ca:     caProvider,
		ledger: l,
		crl:    publisher,
		signer: s,
	}
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.instrument("/health", s.handleHealth))
	mux.HandleFunc("/crl/issuing.crl", s.instrument("/crl/issuing.crl", s.handleCRL))
	mux.HandleFunc("/api/register-agent", s.instrument("/api/register-agent", s.requireJWT(s.handleRegisterAgent)))
	mux.HandleFunc("/api/revoke", s.instrument("/api/revoke", s.requireJWT(s.handleRevoke)))
	mux.HandleFunc("/api/revocations", s.instrument("/api/revocations", s.requireJWT(s.handleRevocations)))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Run serves until the listener fails
func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("server listening", zap.String("addr", addr))
	return srv.ListenAndServe()
}
