// Package crl maintains the DER-encoded certificate revocation list. A single
// worker goroutine owns the CRL file; rebuilds are requested over a bounded
// command channel and applied FIFO.
package crl

import (
	"context"
	"crypto/rand"
	"crypto/x509"
	"fmt"
	"math/big"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/o3willard-AI/agentpki/internal/ca"
	apperrors "github.com/o3willard-AI/agentpki/internal/errors"
)

const (
	commandQueueSize = 32
	// nextUpdateWindow is how far ahead a freshly built CRL stays valid
	nextUpdateWindow = 86400 * time.Second
)

// Revocation is one revoked serial as fed into a CRL rebuild
type Revocation struct {
	SerialHex     string `json:"serial_hex"`
	Reason        string `json:"reason,omitempty"`
	RevokedAtUnix uint64 `json:"revoked_at_unix"`
}

type rebuildCommand struct {
	material *ca.Material
	snapshot []Revocation
	respond  chan error
}

// Publisher owns the CRL file and serializes rebuilds
type Publisher struct {
	path   string
	logger *zap.Logger
	cmds   chan rebuildCommand
	done   chan struct{}
}

// NewPublisher creates the publisher and starts its worker goroutine
func NewPublisher(path string, logger *zap.Logger) *Publisher {
	p := &Publisher{
		path:   path,
		logger: logger,
		cmds:   make(chan rebuildCommand, commandQueueSize),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Close stops the worker after draining queued commands
func (p *Publisher) Close() {
	close(p.cmds)
	<-p.done
}

func (p *Publisher) run() {
	defer close(p.done)
	for cmd := range p.cmds {
		cmd.respond <- p.rebuild(cmd.material, cmd.snapshot)
	}
}

// ReadFile returns the raw DER bytes of the published CRL
func (p *Publisher) ReadFile() ([]byte, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIo, fmt.Sprintf("failed to read CRL file %s", p.path), err)
	}
	return data, nil
}

// Missing reports whether the CRL file does not exist
func (p *Publisher) Missing() bool {
	_, err := os.Stat(p.path)
	return os.IsNotExist(err)
}

// Stale reports whether the published CRL is absent, unparseable or past its
// nextUpdate. Parse failure counts as expired.
func (p *Publisher) Stale(now time.Time) bool {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return true
	}
	list, err := x509.ParseRevocationList(data)
	if err != nil {
		return true
	}
	return !list.NextUpdate.After(now)
}

// RequestRebuild asks the worker to rebuild the CRL from the given ledger
// snapshot and waits for the result
func (p *Publisher) RequestRebuild(ctx context.Context, material *ca.Material, snapshot []Revocation) error {
	cmd := rebuildCommand{
		material: material,
		snapshot: snapshot,
		respond:  make(chan error, 1),
	}
	select {
	case p.cmds <- cmd:
	case <-p.done:
		return apperrors.Upstream("crl worker closed")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.respond:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) rebuild(material *ca.Material, snapshot []Revocation) error {
	p.logger.Info("rebuilding CRL", zap.Int("revocations", len(snapshot)))
	started := time.Now()

	entries := make([]x509.RevocationListEntry, 0, len(snapshot))
	for _, rev := range snapshot {
		serial, ok := new(big.Int).SetString(rev.SerialHex, 16)
		if !ok {
			return apperrors.Crl(fmt.Sprintf("invalid serial %q in revocation snapshot", rev.SerialHex), nil)
		}
		entries = append(entries, x509.RevocationListEntry{
			SerialNumber:   serial,
			RevocationTime: time.Unix(int64(rev.RevokedAtUnix), 0).UTC(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SerialNumber.Cmp(entries[j].SerialNumber) < 0
	})

	now := time.Now()
	template := &x509.RevocationList{
		Number:                    big.NewInt(now.Unix()),
		ThisUpdate:                now,
		NextUpdate:                now.Add(nextUpdateWindow),
		RevokedCertificateEntries: entries,
	}

	der, err := x509.CreateRevocationList(rand.Reader, template, material.Cert, material.Key)
	if err != nil {
		return apperrors.Crl("failed to create CRL", err)
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, der, 0644); err != nil {
		return apperrors.Wrap(apperrors.CodeIo, fmt.Sprintf("failed to write %s", tmp), err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return apperrors.Wrap(apperrors.CodeIo, fmt.Sprintf("failed to publish %s", p.path), err)
	}

	p.logger.Info("CRL updated",
		zap.String("path", p.path),
		zap.Int("bytes", len(der)),
		zap.Duration("took", time.Since(started)),
	)
	return nil
}
