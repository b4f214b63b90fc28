package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/o3willard-AI/agentpki/internal/api"
	apperrors "github.com/o3willard-AI/agentpki/internal/errors"
	"github.com/o3willard-AI/agentpki/internal/oidc"
	"github.com/o3willard-AI/agentpki/internal/signer"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthOK())
}

// handleCRL serves the DER CRL, rebuilding it first when the published file
// is missing, unparseable or past its nextUpdate
func (s *Server) handleCRL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.crl.Stale(time.Now()) {
		if err := s.rebuildCRL(r); err != nil {
			s.logger.Error("on-demand CRL rebuild failed", zap.Error(err))
			http.Error(w, "failed to rebuild CRL", http.StatusInternalServerError)
			return
		}
	}

	data, err := s.crl.ReadFile()
	if err != nil {
		s.logger.Error("failed to read CRL file", zap.Error(err))
		http.Error(w, "CRL not available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/pkix-crl")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) rebuildCRL(r *http.Request) error {
	material, err := s.ca.Get()
	if err != nil {
		return err
	}
	return s.crl.RequestRebuild(r.Context(), material, s.ledger.RevokedRevocations())
}

// handleRegisterAgent signs a CSR for the authenticated subject
func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request, claims *oidc.Claims) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req signer.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := s.signer.Sign(r.Context(), req, claims)
	if err != nil {
		if apperrors.IsPolicy(err) {
			s.logger.Warn("CSR rejected by policy",
				zap.String("sub", claims.Subject),
				zap.Error(err),
			)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("failed to sign CSR", zap.String("sub", claims.Subject), zap.Error(err))
		http.Error(w, "failed to sign CSR", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRevoke revokes by serial or subject, then rebuilds the CRL. The
// ledger write is acknowledged before the rebuild is requested.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request, claims *oidc.Claims) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	targets, res := resolveTargets(s.ledger, req)
	switch res {
	case badRequest:
		http.Error(w, "a non-blank serial_hex or a subject is required", http.StatusBadRequest)
		return
	case nothingToDo:
		w.WriteHeader(http.StatusNoContent)
		return
	}

	reason := ""
	if req.Reason != nil {
		reason = *req.Reason
	}
	for _, serial := range targets {
		if err := s.ledger.MarkRevoked(r.Context(), serial, reason); err != nil {
			s.logger.Error("failed to record revocation",
				zap.String("serial", serial),
				zap.Error(err),
			)
			http.Error(w, "failed to record revocation", http.StatusInternalServerError)
			return
		}
	}

	if err := s.rebuildCRL(r); err != nil {
		s.logger.Error("failed to rebuild CRL after revoke", zap.Error(err))
		http.Error(w, "failed to rebuild CRL", http.StatusInternalServerError)
		return
	}

	s.logger.Info("revocation applied",
		zap.Int("serials", len(targets)),
		zap.String("requested_by", claims.Subject),
	)
	w.WriteHeader(http.StatusNoContent)
}

// handleRevocations serves the revoked set as JSON
func (s *Server) handleRevocations(w http.ResponseWriter, r *http.Request, claims *oidc.Claims) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.RevokedRevocations())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
