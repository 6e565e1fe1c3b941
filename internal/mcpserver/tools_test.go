package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxteam/orchestrator-core/internal/app"
	"github.com/fluxteam/orchestrator-core/internal/config"
	"github.com/fluxteam/orchestrator-core/internal/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		SchemaVersion:               config.SchemaVersion,
		LogLevel:                    "info",
		ShutdownTimeout:             30 * time.Second,
		RequestTimeout:              5 * time.Second,
		PoolInitialSize:             4,
		PoolMinSize:                 1,
		PoolMaxSize:                 10,
		PoolAutoScale:               true,
		PoolPerformanceFloor:        0.5,
		TeamMinSize:                 1,
		TeamMaxSize:                 5,
		TeamMaxTeams:                10,
		TeamLeaderThreshold:         3,
		TeamAutoDissolveIdle:        time.Hour,
		TeamPerformingThreshold:     0.7,
		ResourceCoresPerAgent:       0.5,
		ResourceMemoryMBPerAgent:    512,
		ResourceStorageMBPerAgent:   1024,
		ResourceBandwidthMbPerAgent: 10,
		StateDir:                    t.TempDir(),
		BreakerMaxFailures:          5,
		BreakerInterval:             60 * time.Second,
		BreakerTimeout:              30 * time.Second,
		AuditBufferSize:             100,
		AuditFlushInterval:          5 * time.Second,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	a := app.New(testConfig(t), nil, nil)
	return New(testConfig(t), a)
}

func decode(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func TestHandleToolCallTeamFormAndGet(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	formResult, err := s.handleToolCall(ctx, "team_form", map[string]interface{}{
		"mission":         "ship the release",
		"size":            float64(2),
		"required_skills": []interface{}{"backend", "testing"},
		"priority":        "high",
	})
	require.NoError(t, err)
	require.False(t, formResult.IsError)

	formed := decode(t, formResult)
	teamID, _ := formed["id"].(string)
	require.NotEmpty(t, teamID)

	getResult, err := s.handleToolCall(ctx, "team_get", map[string]interface{}{"team_id": teamID})
	require.NoError(t, err)
	require.False(t, getResult.IsError)
	got := decode(t, getResult)
	assert.Equal(t, teamID, got["id"])
}

func TestHandleToolCallTeamFormMissingMissionErrors(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleToolCall(context.Background(), "team_form", map[string]interface{}{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleToolCallTeamDissolve(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	formResult, err := s.handleToolCall(ctx, "team_form", map[string]interface{}{
		"mission": "dissolve me", "size": float64(1),
	})
	require.NoError(t, err)
	teamID := decode(t, formResult)["id"].(string)

	dissolveResult, err := s.handleToolCall(ctx, "team_dissolve", map[string]interface{}{
		"team_id": teamID, "reason": "mission complete",
	})
	require.NoError(t, err)
	require.False(t, dissolveResult.IsError)
	dissolved := decode(t, dissolveResult)
	assert.Equal(t, string(models.TeamDissolved), dissolved["state"])
}

func TestHandleToolCallDocCreateAndVersions(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	createResult, err := s.handleToolCall(ctx, "doc_create", map[string]interface{}{
		"title":   "design doc",
		"type":    string(models.DocDesign),
		"content": "# hello",
		"owner":   "agent-1",
	})
	require.NoError(t, err)
	require.False(t, createResult.IsError)
	doc := decode(t, createResult)
	rootID, _ := doc["root_id"].(string)
	require.NotEmpty(t, rootID)

	versionsResult, err := s.handleToolCall(ctx, "doc_versions", map[string]interface{}{"root_id": rootID})
	require.NoError(t, err)
	require.False(t, versionsResult.IsError)
}

func TestHandleToolCallDocVersionsUnknownRootErrors(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleToolCall(context.Background(), "doc_versions", map[string]interface{}{"root_id": "does-not-exist"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleToolCallHandoffCreateAndAccept(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	createResult, err := s.handleToolCall(ctx, "doc_create", map[string]interface{}{
		"title": "handoff target", "type": string(models.DocOther), "content": "package main", "owner": "agent-1",
	})
	require.NoError(t, err)
	docID := decode(t, createResult)["id"].(string)

	handoffResult, err := s.handleToolCall(ctx, "handoff_create", map[string]interface{}{
		"document_id": docID, "from": "agent-1", "to": "agent-2", "reason": "needs review", "priority": "medium",
	})
	require.NoError(t, err)
	require.False(t, handoffResult.IsError)
	h := decode(t, handoffResult)
	handoffID, _ := h["id"].(string)
	require.NotEmpty(t, handoffID)

	acceptResult, err := s.handleToolCall(ctx, "handoff_accept", map[string]interface{}{"handoff_id": handoffID})
	require.NoError(t, err)
	require.False(t, acceptResult.IsError)
	accepted := decode(t, acceptResult)
	assert.Equal(t, string(models.HandoffAccepted), accepted["status"])
}

func TestHandleToolCallGateEvaluate(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleToolCall(context.Background(), "gate_evaluate", map[string]interface{}{
		"gate_name": "default", "target": "story-1", "assessor": "agent-1",
	})
	require.NoError(t, err)
	require.False(t, result.IsError)
}

func TestHandleToolCallUnknownToolErrors(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleToolCall(context.Background(), "no_such_tool", nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestToolDefinitionsCoverEveryRegisteredTool(t *testing.T) {
	defs := toolDefinitions()
	names := make(map[string]bool, len(defs))
	for _, d := range defs {
		names[d.Name] = true
	}
	for _, expected := range []string{
		"team_form", "team_dissolve", "team_get",
		"doc_create", "doc_versions",
		"handoff_create", "handoff_accept",
		"gate_evaluate",
		"team_broadcast", "team_status_report", "team_status_aggregate",
		"vote_create", "vote_submit", "vote_tally",
	} {
		assert.True(t, names[expected], "missing tool definition: %s", expected)
	}
}
