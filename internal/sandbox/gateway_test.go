package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"omega/internal/devices"
	"omega/internal/gatefilter"
)

func TestGatewayVerdictFallsBackToBuiltin(t *testing.T) {
	e, _ := newTestEngine(t)

	assert.Equal(t, gatefilter.Allow, e.GatewayVerdict(context.Background(), "how do I water the plants?"))

	verdict := e.GatewayVerdict(context.Background(), "DROP TABLE missions")
	assert.True(t, strings.HasPrefix(verdict, gatefilter.DenyPrefix), "got %q", verdict)
}

func TestGatewayVerdictFailsClosedOnBrokenSkill(t *testing.T) {
	dir := t.TempDir()
	e := NewEngine(devices.New(zap.NewNop()), dir, zap.NewNop())

	// An installed but unloadable filter must deny, never allow.
	path := filepath.Join(dir, GatewayFilterSkill+".wasm")
	require.NoError(t, os.WriteFile(path, []byte("corrupt"), 0o644))

	verdict := e.GatewayVerdict(context.Background(), "hello there")
	assert.True(t, gatefilter.Denied(verdict))
}
