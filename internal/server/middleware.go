package server

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/o3willard-AI/agentpki/internal/metrics"
	"github.com/o3willard-AI/agentpki/internal/oidc"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument records request counts and latency per route
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.RecordHTTPRequest(route, r.Method, rec.status, time.Since(started).Seconds())
	}
}

type authedHandler func(w http.ResponseWriter, r *http.Request, claims *oidc.Claims)

// requireJWT validates the bearer token against the cached JWKS before
// invoking the handler. Any validation failure is a 401.
func (s *Server) requireJWT(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(authz, "Bearer ")
		if !ok || token == "" {
			s.logger.Debug("request without bearer token", zap.String("path", r.URL.Path))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		jwks, err := s.oidc.GetJWKS(r.Context())
		if err != nil {
			s.logger.Error("failed to fetch JWKS", zap.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		claims, err := oidc.ValidateToken(token, jwks, s.oidc.Audiences())
		if err != nil {
			s.logger.Warn("token validation failed", zap.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		s.logger.Debug("validated bearer token", zap.String("sub", claims.Subject))
		next(w, r, claims)
	}
}
