package webhook

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/o3willard-AI/agentpki/internal/api"
	"github.com/o3willard-AI/agentpki/internal/metrics"
)

// Handler builds the webhook HTTP surface
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", b.instrument("/health", b.handleHealth))
	mux.HandleFunc("/api/webhook", b.instrument("/api/webhook", b.handleWebhook))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Run serves until the listener fails
func (b *Bridge) Run(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           b.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	b.logger.Info("webhook listening", zap.String("addr", addr))
	return srv.ListenAndServe()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (b *Bridge) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.RecordHTTPRequest(route, r.Method, rec.status, time.Since(started).Seconds())
	}
}

func (b *Bridge) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.HealthOK())
}

// handleWebhook accepts an identity event, classifies it and either forwards
// a revocation (spooling on failure), cancels pending revocations, or
// acknowledges without action. The 200 is returned once the event is durable.
func (b *Bridge) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !b.inbound.Authorize(r) {
		b.logger.Warn("unauthorized webhook request", zap.String("remote", r.RemoteAddr))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var event Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid event payload", http.StatusBadRequest)
		return
	}

	switch Classify(&event) {
	case ActionIgnore:
		b.logger.Info("ignored webhook event",
			zap.String("type", event.Type),
			zap.String("resource", event.ResourcePath),
		)
		w.WriteHeader(http.StatusOK)

	case ActionEnabled:
		b.handleEnable(w, &event)

	case ActionRevoke:
		b.handleRevoke(w, r, &event)
	}
}

// handleEnable cancels queued revocations for a re-enabled subject so a
// quick disable/enable cycle does not revoke after the fact
func (b *Bridge) handleEnable(w http.ResponseWriter, event *Event) {
	subject := ExtractSubject(event)
	if subject == "" {
		b.logger.Debug("enable event without subject; nothing to cancel")
		w.WriteHeader(http.StatusOK)
		return
	}

	n, err := b.CancelPendingForSubject(subject)
	if err != nil {
		b.logger.Warn("failed to cancel pending revokes",
			zap.String("subject", subject),
			zap.Error(err),
		)
	} else {
		b.logger.Info("canceled pending revokes",
			zap.String("subject", subject),
			zap.Int("count", n),
		)
	}
	w.WriteHeader(http.StatusOK)
}

func (b *Bridge) handleRevoke(w http.ResponseWriter, r *http.Request, event *Event) {
	subject := ExtractSubject(event)
	if subject == "" {
		b.logger.Warn("webhook event without resolvable subject",
			zap.String("type", event.Type),
			zap.String("resource", event.ResourcePath),
		)
		w.WriteHeader(http.StatusOK)
		return
	}

	reason := b.revokeReason
	req := api.RevokeRequest{Subject: &subject, Reason: &reason}

	if err := b.ForwardRevokeWithRetry(r.Context(), req); err != nil {
		b.logger.Warn("immediate forward failed; queueing",
			zap.String("subject", subject),
			zap.Error(err),
		)
		if qerr := b.QueueRevoke(req); qerr != nil {
			b.logger.Error("failed to queue revocation", zap.Error(qerr))
			http.Error(w, "failed to queue revocation", http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}
