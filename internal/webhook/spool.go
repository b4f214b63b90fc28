package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/o3willard-AI/agentpki/internal/api"
	apperrors "github.com/o3willard-AI/agentpki/internal/errors"
	"github.com/o3willard-AI/agentpki/internal/metrics"
)

// SpoolItem is the on-disk form of a queued revocation
type SpoolItem struct {
	Req api.RevokeRequest `json:"req"`
}

// QueueRevoke durably writes a failed revocation to the spool directory for
// the background processor to retry
func (b *Bridge) QueueRevoke(req api.RevokeRequest) error {
	data, err := json.Marshal(SpoolItem{Req: req})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeSerialization, "failed to encode spool item", err)
	}

	var rid [8]byte
	if _, err := rand.Read(rid[:]); err != nil {
		return apperrors.Wrap(apperrors.CodeIo, "failed to generate spool file id", err)
	}
	name := fmt.Sprintf("revoke-%d-%s.json", time.Now().UnixMilli(), hex.EncodeToString(rid[:]))
	path := filepath.Join(b.spoolDir, name)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return apperrors.Wrap(apperrors.CodeIo, "failed to write spool file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperrors.Wrap(apperrors.CodeIo, "failed to publish spool file", err)
	}

	metrics.IncSpoolEnqueued("forward_failed")
	b.logger.Info("queued revocation to spool", zap.String("file", name))
	return nil
}

// CancelPendingForSubject removes queued revocations targeting the subject,
// returning how many were removed. Unreadable or invalid files are left for
// the processor loop to clean up.
func (b *Bridge) CancelPendingForSubject(subject string) (int, error) {
	entries, err := os.ReadDir(b.spoolDir)
	if err != nil {
		b.logger.Warn("spool scan failed", zap.Error(err))
		return 0, nil
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(b.spoolDir, entry.Name())
		item, err := readSpoolItem(path)
		if err != nil {
			b.logger.Warn("invalid spool item; skipping", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		if item.Req.Subject == nil || *item.Req.Subject != subject {
			continue
		}
		if err := os.Remove(path); err != nil {
			b.logger.Warn("failed to remove spool file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		removed++
	}

	metrics.AddSpoolCanceled(removed)
	return removed, nil
}

// RunSpoolProcessor drains the spool on the configured interval until the
// context is canceled
func (b *Bridge) RunSpoolProcessor(ctx context.Context) {
	b.logger.Info("spool processor running",
		zap.String("dir", b.spoolDir),
		zap.Duration("interval", b.spoolInterval),
	)
	ticker := time.NewTicker(b.spoolInterval)
	defer ticker.Stop()

	for {
		b.processSpoolOnce(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// processSpoolOnce retries every queued revocation: forwarded files and
// unparseable files are deleted, still-failing files stay for the next cycle
func (b *Bridge) processSpoolOnce(ctx context.Context) {
	entries, err := os.ReadDir(b.spoolDir)
	if err != nil {
		b.logger.Warn("spool scan failed", zap.Error(err))
		return
	}

	pending := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(b.spoolDir, entry.Name())
		item, err := readSpoolItem(path)
		if err != nil {
			b.logger.Warn("invalid spool item; deleting", zap.String("file", entry.Name()), zap.Error(err))
			os.Remove(path)
			metrics.IncSpoolDequeued("invalid")
			continue
		}

		if err := b.ForwardRevokeWithRetry(ctx, item.Req); err != nil {
			b.logger.Warn("spool item still failing", zap.String("file", entry.Name()), zap.Error(err))
			pending++
			continue
		}
		os.Remove(path)
		metrics.IncSpoolDequeued("forwarded")
	}
	metrics.SetSpoolDepth(pending)
}

func readSpoolItem(path string) (*SpoolItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIo, fmt.Sprintf("failed to read %s", path), err)
	}
	var item SpoolItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSerialization, fmt.Sprintf("failed to parse %s", path), err)
	}
	return &item, nil
}
