package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"omega/internal/audit"
	"omega/internal/devices"
	"omega/internal/governor"
	"omega/internal/sandbox"
	"omega/internal/scheduler"
)

type scriptedBrain struct {
	graphJSON string
}

func (b *scriptedBrain) Generate(_ context.Context, _ string, prompt string) (string, error) {
	if strings.Contains(prompt, "Decompose") {
		return b.graphJSON, nil
	}
	return "synthesized answer", nil
}

func newTestServer(t *testing.T, pol governor.Policy) *Server {
	t.Helper()
	registry := devices.New(zap.NewNop())
	gov := governor.New(pol, zap.NewNop())
	skills := sandbox.NewEngine(registry, t.TempDir(), zap.NewNop(), sandbox.WithGovernor(gov))
	brain := &scriptedBrain{
		graphJSON: `{"tasks": [{"id": "t1", "description": "report status", "depends_on": [], "assigned_agent": "Gamma"}]}`,
	}
	orch := scheduler.New(brain, gov, "test-model", zap.NewNop())
	return New(orch, registry, skills, gov, zap.NewNop())
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	router := newTestServer(t, governor.Policy{}).Router(nil)
	rec := doJSON(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatRunsMission(t *testing.T) {
	router := newTestServer(t, governor.Policy{}).Router(nil)
	rec := doJSON(t, router, http.MethodPost, "/api/chat", `{"message": "status report please"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "synthesized answer", resp["response"])
	assert.NotEmpty(t, resp["mission_id"])
}

func TestGatewayFilterRejectsBeforeHandlers(t *testing.T) {
	router := newTestServer(t, governor.Policy{}).Router(nil)
	rec := doJSON(t, router, http.MethodPost, "/api/chat", `{"message": "please DROP TABLE everything"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Destructive")
}

func TestChatPolicyDenied(t *testing.T) {
	srv := newTestServer(t, governor.Policy{ForbiddenActions: []string{"report status"}})
	rec := doJSON(t, srv.Router(nil), http.MethodPost, "/api/chat", `{"message": "do the thing"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "blocked by policy")
}

func TestDeviceRoutes(t *testing.T) {
	router := newTestServer(t, governor.Policy{}).Router(nil)

	rec := doJSON(t, router, http.MethodGet, "/api/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []devices.Entity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.NotEmpty(t, list)

	rec = doJSON(t, router, http.MethodPost, "/api/devices/ARK-01/command", `{"command": "POWER_ON"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "powered on")

	rec = doJSON(t, router, http.MethodPost, "/api/devices/NOPE/command", `{"command": "POWER_ON"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/devices/ARK-01/command", `{"command": "FROBNICATE"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeviceCommandGovernorGate(t *testing.T) {
	srv := newTestServer(t, governor.Policy{ForbiddenActions: []string{"REBOOT"}})
	rec := doJSON(t, srv.Router(nil), http.MethodPost, "/api/devices/ARK-01/command", `{"command": "REBOOT"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuditTrailRecordsDecisions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	trail, err := audit.Open(path, zap.NewNop())
	require.NoError(t, err)

	registry := devices.New(zap.NewNop())
	gov := governor.New(governor.Policy{ForbiddenActions: []string{"REBOOT"}}, zap.NewNop())
	skills := sandbox.NewEngine(registry, t.TempDir(), zap.NewNop())
	orch := scheduler.New(&scriptedBrain{}, gov, "test-model", zap.NewNop())
	router := New(orch, registry, skills, gov, zap.NewNop(), WithAudit(trail)).Router(nil)

	doJSON(t, router, http.MethodPost, "/api/devices/ARK-01/command", `{"command": "REBOOT"}`)
	doJSON(t, router, http.MethodPost, "/api/devices/ARK-01/command", `{"command": "POWER_ON"}`)
	require.NoError(t, trail.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "command_denied")
	assert.Contains(t, string(data), "command_executed")
}

func TestSkillRoutes(t *testing.T) {
	router := newTestServer(t, governor.Policy{}).Router(nil)

	rec := doJSON(t, router, http.MethodGet, "/api/skills", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "skills")

	rec = doJSON(t, router, http.MethodPost, "/api/skills/missing/execute", `{"input": "x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
