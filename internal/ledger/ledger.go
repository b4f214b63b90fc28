// Package ledger keeps the append-only record of certificate issuances and
// revocations. A single worker goroutine owns all mutations and the CSV file;
// readers share the in-memory sequence through a reader-writer lock.
package ledger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/o3willard-AI/agentpki/internal/crl"
	apperrors "github.com/o3willard-AI/agentpki/internal/errors"
)

const commandQueueSize = 100

type commandKind int

const (
	cmdRecordIssued commandKind = iota
	cmdMarkRevoked
)

type command struct {
	kind commandKind

	subject   string
	serialHex string
	issuedAt  uint64
	issuer    string
	realm     string

	reason    string
	revokedAt uint64

	respond chan error
}

// Ledger is the shared handle to the issuance/revocation store
type Ledger struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	entries []Entry

	cmds chan command
	done chan struct{}
}

// New loads existing entries from path (absent or empty files start an empty
// ledger) and starts the writer goroutine
func New(path string, logger *zap.Logger) (*Ledger, error) {
	l := &Ledger{
		path:   path,
		logger: logger,
		cmds:   make(chan command, commandQueueSize),
		done:   make(chan struct{}),
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// fresh ledger
	case err != nil:
		return nil, apperrors.Wrap(apperrors.CodeIo, fmt.Sprintf("failed to read ledger file %s", path), err)
	case len(data) > 0:
		entries, perr := parseCSV(data)
		if perr != nil {
			return nil, perr
		}
		l.entries = entries
	}
	logger.Info("ledger loaded", zap.String("path", path), zap.Int("entries", len(l.entries)))

	go l.run()
	return l, nil
}

// Close stops the writer after draining queued commands
func (l *Ledger) Close() {
	close(l.cmds)
	<-l.done
}

func (l *Ledger) run() {
	defer close(l.done)
	for cmd := range l.cmds {
		cmd.respond <- l.apply(cmd)
	}
}

func (l *Ledger) apply(cmd command) error {
	l.mu.Lock()
	switch cmd.kind {
	case cmdRecordIssued:
		l.entries = append(l.entries, Entry{
			Subject:      cmd.subject,
			SerialHex:    cmd.serialHex,
			IssuedAtUnix: cmd.issuedAt,
			Issuer:       cmd.issuer,
			Realm:        cmd.realm,
		})
	case cmdMarkRevoked:
		if e := l.findBySerialLocked(cmd.serialHex); e != nil {
			e.Revoked = true
			e.RevokedAtUnix = cmd.revokedAt
			e.Reason = cmd.reason
		} else {
			l.entries = append(l.entries, Entry{
				SerialHex:     cmd.serialHex,
				Revoked:       true,
				RevokedAtUnix: cmd.revokedAt,
				Reason:        cmd.reason,
			})
		}
	}
	l.mu.Unlock()

	return l.persist()
}

// findBySerialLocked returns the most recent entry matching serial,
// case-insensitive. Caller holds the write lock.
func (l *Ledger) findBySerialLocked(serialHex string) *Entry {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if strings.EqualFold(l.entries[i].SerialHex, serialHex) {
			return &l.entries[i]
		}
	}
	return nil
}

func (l *Ledger) persist() error {
	l.mu.RLock()
	snapshot := make([]Entry, len(l.entries))
	copy(snapshot, l.entries)
	l.mu.RUnlock()

	data, err := encodeCSV(snapshot)
	if err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return apperrors.Wrap(apperrors.CodeIo, fmt.Sprintf("failed to write %s", tmp), err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return apperrors.Wrap(apperrors.CodeIo, fmt.Sprintf("failed to replace %s", l.path), err)
	}
	return nil
}

func (l *Ledger) send(ctx context.Context, cmd command) error {
	select {
	case l.cmds <- cmd:
	case <-l.done:
		return apperrors.Upstream("ledger worker closed")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.respond:
		return err
	case <-l.done:
		return apperrors.Upstream("ledger worker closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordIssued appends a new issuance row and persists the ledger. Serials
// are normalized to uppercase hex on insertion.
func (l *Ledger) RecordIssued(ctx context.Context, subject, serialHex, issuer, realm string) error {
	return l.send(ctx, command{
		kind:      cmdRecordIssued,
		subject:   subject,
		serialHex: strings.ToUpper(serialHex),
		issuedAt:  uint64(time.Now().Unix()),
		issuer:    issuer,
		realm:     realm,
		respond:   make(chan error, 1),
	})
}

// MarkRevoked flags the most recent row matching serialHex as revoked,
// stamping time and reason; an unknown serial appends a synthetic revoked row
// with the serial normalized to uppercase hex
func (l *Ledger) MarkRevoked(ctx context.Context, serialHex, reason string) error {
	return l.send(ctx, command{
		kind:      cmdMarkRevoked,
		serialHex: strings.ToUpper(serialHex),
		reason:    reason,
		revokedAt: uint64(time.Now().Unix()),
		respond:   make(chan error, 1),
	})
}

// FindBySubject returns copies of all entries whose subject matches exactly
func (l *Ledger) FindBySubject(subject string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	for _, e := range l.entries {
		if e.Subject == subject {
			out = append(out, e)
		}
	}
	return out
}

// RevokedRevocations projects the revoked entries into CRL input form
func (l *Ledger) RevokedRevocations() []crl.Revocation {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]crl.Revocation, 0)
	for _, e := range l.entries {
		if !e.Revoked {
			continue
		}
		out = append(out, crl.Revocation{
			SerialHex:     e.SerialHex,
			Reason:        e.Reason,
			RevokedAtUnix: e.RevokedAtUnix,
		})
	}
	return out
}

// Len returns the number of ledger rows
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
