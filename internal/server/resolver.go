package server

import (
	"strings"

	"github.com/o3willard-AI/agentpki/internal/api"
	"github.com/o3willard-AI/agentpki/internal/ledger"
)

type resolution int

const (
	// resolved carries one or more target serials
	resolved resolution = iota
	// nothingToDo means the request was well-formed but matched no rows;
	// replay-safe no-op
	nothingToDo
	// badRequest means neither a usable serial nor a subject was given
	badRequest
)

// resolveTargets maps a revoke request to the set of serials to revoke.
// A present serial wins over subject; a present-but-blank serial is a bad
// request; a subject with no ledger rows resolves to a no-op.
func resolveTargets(l *ledger.Ledger, req api.RevokeRequest) ([]string, resolution) {
	if req.SerialHex != nil {
		if strings.TrimSpace(*req.SerialHex) == "" {
			return nil, badRequest
		}
		return []string{*req.SerialHex}, resolved
	}
	if req.Subject != nil && *req.Subject != "" {
		entries := l.FindBySubject(*req.Subject)
		if len(entries) == 0 {
			return nil, nothingToDo
		}
		serials := make([]string, 0, len(entries))
		for _, e := range entries {
			serials = append(serials, e.SerialHex)
		}
		return serials, resolved
	}
	return nil, badRequest
}
