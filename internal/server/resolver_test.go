package server

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/o3willard-AI/agentpki/internal/api"
	"github.com/o3willard-AI/agentpki/internal/ledger"
)

func strptr(s string) *string { return &s }

func newResolverLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.New(filepath.Join(t.TempDir(), "ledger.csv"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(l.Close)

	ctx := context.Background()
	require.NoError(t, l.RecordIssued(ctx, "alice", "AA01", "", ""))
	require.NoError(t, l.RecordIssued(ctx, "alice", "AA02", "", ""))
	require.NoError(t, l.RecordIssued(ctx, "bob", "BB01", "", ""))
	return l
}

func TestResolveBySerial(t *testing.T) {
	l := newResolverLedger(t)

	targets, res := resolveTargets(l, api.RevokeRequest{SerialHex: strptr("CAFE")})
	assert.Equal(t, resolved, res)
	assert.Equal(t, []string{"CAFE"}, targets)
}

func TestResolveBlankSerialIsBadRequest(t *testing.T) {
	l := newResolverLedger(t)

	_, res := resolveTargets(l, api.RevokeRequest{SerialHex: strptr("")})
	assert.Equal(t, badRequest, res)

	_, res = resolveTargets(l, api.RevokeRequest{SerialHex: strptr("   ")})
	assert.Equal(t, badRequest, res)
}

func TestResolveBySubjectCollectsAllSerials(t *testing.T) {
	l := newResolverLedger(t)

	targets, res := resolveTargets(l, api.RevokeRequest{Subject: strptr("alice")})
	assert.Equal(t, resolved, res)
	assert.ElementsMatch(t, []string{"AA01", "AA02"}, targets)
}

func TestResolveUnknownSubjectIsNoOp(t *testing.T) {
	l := newResolverLedger(t)

	targets, res := resolveTargets(l, api.RevokeRequest{Subject: strptr("nobody")})
	assert.Equal(t, nothingToDo, res)
	assert.Empty(t, targets)
}

func TestResolveNeitherFieldIsBadRequest(t *testing.T) {
	l := newResolverLedger(t)

	_, res := resolveTargets(l, api.RevokeRequest{})
	assert.Equal(t, badRequest, res)

	_, res = resolveTargets(l, api.RevokeRequest{Reason: strptr("why")})
	assert.Equal(t, badRequest, res)
}

func TestResolveSerialWinsOverSubject(t *testing.T) {
	l := newResolverLedger(t)

	targets, res := resolveTargets(l, api.RevokeRequest{SerialHex: strptr("AA01"), Subject: strptr("alice")})
	assert.Equal(t, resolved, res)
	assert.Equal(t, []string{"AA01"}, targets)
}
