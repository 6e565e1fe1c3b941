package mcpserver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/fluxteam/orchestrator-core/internal/handoff"
	"github.com/fluxteam/orchestrator-core/internal/models"
	"github.com/fluxteam/orchestrator-core/internal/obsmetrics"
	"github.com/fluxteam/orchestrator-core/internal/quality"
	"github.com/fluxteam/orchestrator-core/internal/registry"
	"github.com/fluxteam/orchestrator-core/internal/team"
	"github.com/fluxteam/orchestrator-core/internal/teamproto"
)

// registerTools declares the MCP tools listed in toolDefinitions, mirroring
// the teacher's registerTools/handleToolCall dispatch shape.
func (s *Server) registerTools() {
	s.mcpServer.HandleListTools(func(ctx context.Context, cursor *string) (*mcp.ListToolsResult, error) {
		return &mcp.ListToolsResult{Tools: toolDefinitions()}, nil
	})
	s.mcpServer.HandleCallTool(s.handleToolCall)
}

func toolDefinitions() []mcp.Tool {
	return []mcp.Tool{
		{Name: "team_form", Description: "Form a new team from the agent pool", InputSchema: objectSchema(map[string]any{
			"mission":         strProp("Team mission statement"),
			"size":            numProp("Desired team size"),
			"required_skills": arrProp("Required skills"),
			"priority":        strProp("Priority: low, medium, high, critical"),
		})},
		{Name: "team_dissolve", Description: "Dissolve an existing team", InputSchema: objectSchema(map[string]any{
			"team_id": strProp("Team id"),
			"reason":  strProp("Dissolution reason"),
		})},
		{Name: "team_get", Description: "Fetch a team's current state", InputSchema: objectSchema(map[string]any{
			"team_id": strProp("Team id"),
		})},
		{Name: "doc_create", Description: "Create a new document in the registry", InputSchema: objectSchema(map[string]any{
			"title":       strProp("Document title"),
			"type":        strProp("Document type"),
			"content":     strProp("Document content"),
			"owner":       strProp("Creating agent id"),
			"workflow_id": strProp("Owning workflow id"),
			"team_id":     strProp("Owning team id"),
		})},
		{Name: "doc_versions", Description: "List every version of a document lineage", InputSchema: objectSchema(map[string]any{
			"root_id": strProp("Root document id"),
		})},
		{Name: "handoff_create", Description: "Create a handoff transferring a document to another agent", InputSchema: objectSchema(map[string]any{
			"document_id": strProp("Document id"),
			"from":        strProp("Sending agent id"),
			"to":          strProp("Receiving agent id"),
			"reason":      strProp("Handoff reason"),
			"priority":    strProp("Priority: low, medium, high, critical"),
		})},
		{Name: "handoff_accept", Description: "Accept a pending handoff", InputSchema: objectSchema(map[string]any{
			"handoff_id": strProp("Handoff id"),
		})},
		{Name: "gate_evaluate", Description: "Run a quality gate evaluation against a target", InputSchema: objectSchema(map[string]any{
			"gate_name": strProp("Registered gate id"),
			"target":    strProp("Target id (story, sprint, release)"),
			"assessor":  strProp("Assessing agent id"),
		})},
		{Name: "team_broadcast", Description: "Broadcast a message to every connection on a team", InputSchema: objectSchema(map[string]any{
			"team_id": strProp("Team id"),
			"sender":  strProp("Sending agent id"),
			"message": strProp("Message body"),
		})},
		{Name: "team_status_report", Description: "Report one agent's status within a team", InputSchema: objectSchema(map[string]any{
			"team_id":  strProp("Team id"),
			"agent_id": strProp("Reporting agent id"),
			"state":    strProp("Agent state"),
			"progress": numProp("Progress fraction 0-1"),
		})},
		{Name: "team_status_aggregate", Description: "Aggregate the latest status reports for a team", InputSchema: objectSchema(map[string]any{
			"team_id": strProp("Team id"),
		})},
		{Name: "vote_create", Description: "Open a team vote", InputSchema: objectSchema(map[string]any{
			"team_id":       strProp("Team id"),
			"proposal":      strProp("Proposal text"),
			"total_members": numProp("Total eligible voters"),
			"deadline":      strProp("RFC3339 deadline; defaults to 5 minutes from now"),
			"threshold":     numProp("Fraction of total_members required to pass (default 0.5)"),
			"allow_veto":    strProp("true to allow a single VETO to reject the vote"),
			"anonymous":     strProp("true to omit reasons from the tally"),
		})},
		{Name: "vote_submit", Description: "Submit a ballot on an open vote", InputSchema: objectSchema(map[string]any{
			"vote_id":  strProp("Vote id"),
			"agent_id": strProp("Voting agent id"),
			"option":   strProp("yes, no, abstain, or veto"),
			"reason":   strProp("Optional justification"),
		})},
		{Name: "vote_tally", Description: "Compute a vote's current outcome", InputSchema: objectSchema(map[string]any{
			"vote_id": strProp("Vote id"),
		})},
	}
}

func strProp(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }
func numProp(desc string) map[string]any { return map[string]any{"type": "number", "description": desc} }
func arrProp(desc string) map[string]any { return map[string]any{"type": "array", "description": desc} }

func objectSchema(props map[string]any) mcp.ToolInputSchema {
	schemaProps := make(mcp.ToolInputSchemaProperties, len(props))
	for k, v := range props {
		schemaProps[k] = v
	}
	return mcp.ToolInputSchema{Type: "object", Properties: schemaProps}
}

func (s *Server) handleToolCall(ctx context.Context, name string, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	start := time.Now()
	result, err := s.dispatch(ctx, name, arguments)

	outcome := "ok"
	if err != nil || (result != nil && result.IsError) {
		outcome = "error"
	}
	obsmetrics.RecordToolCall(name, outcome, time.Since(start))
	return result, err
}

func (s *Server) dispatch(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	switch name {
	case "team_form":
		return s.handleTeamForm(ctx, args)
	case "team_dissolve":
		return s.handleTeamDissolve(ctx, args)
	case "team_get":
		return s.handleTeamGet(ctx, args)
	case "doc_create":
		return s.handleDocCreate(ctx, args)
	case "doc_versions":
		return s.handleDocVersions(ctx, args)
	case "handoff_create":
		return s.handleHandoffCreate(ctx, args)
	case "handoff_accept":
		return s.handleHandoffAccept(ctx, args)
	case "gate_evaluate":
		return s.handleGateEvaluate(ctx, args)
	case "team_broadcast":
		return s.handleTeamBroadcast(ctx, args)
	case "team_status_report":
		return s.handleTeamStatusReport(ctx, args)
	case "team_status_aggregate":
		return s.handleTeamStatusAggregate(ctx, args)
	case "vote_create":
		return s.handleVoteCreate(ctx, args)
	case "vote_submit":
		return s.handleVoteSubmit(ctx, args)
	case "vote_tally":
		return s.handleVoteTally(ctx, args)
	default:
		return errorResult("unknown tool: %s", name)
	}
}

func argString(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

func argInt(args map[string]interface{}, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func argStrings(args map[string]interface{}, key string) []string {
	raw, _ := args[key].([]interface{})
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

func argFloat(args map[string]interface{}, key string, fallback float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

func argBool(args map[string]interface{}, key string) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

func parsePriority(s string) models.Priority {
	switch s {
	case "low":
		return models.PriorityLow
	case "high":
		return models.PriorityHigh
	case "critical":
		return models.PriorityCritical
	default:
		return models.PriorityMedium
	}
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return errorResult("failed to encode result: %v", err)
	}
	return textResult(string(payload)), nil
}

func (s *Server) handleTeamForm(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	req := team.FormRequest{
		Mission:        argString(args, "mission"),
		Type:           models.TeamCrossFunctional,
		Size:           argInt(args, "size", s.app.Config.TeamMinSize),
		RequiredSkills: argStrings(args, "required_skills"),
		Priority:       parsePriority(argString(args, "priority")),
	}
	if req.Mission == "" {
		return errorResult("mission is required")
	}

	t, err := s.app.Teams.FormTeam(ctx, req)
	if err != nil {
		return errorResult("team formation failed: %v", err)
	}
	return marshalResult(t)
}

func (s *Server) handleTeamDissolve(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	teamID := argString(args, "team_id")
	if teamID == "" {
		return errorResult("team_id is required")
	}
	t, err := s.app.Teams.DissolveTeam(ctx, teamID, argString(args, "reason"))
	if err != nil {
		return errorResult("team dissolution failed: %v", err)
	}
	return marshalResult(t)
}

func (s *Server) handleTeamGet(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	t, err := s.app.Teams.Get(argString(args, "team_id"))
	if err != nil {
		return errorResult("team not found: %v", err)
	}
	return marshalResult(t)
}

func (s *Server) handleDocCreate(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	req := registry.CreateRequest{
		Title:      argString(args, "title"),
		Type:       models.DocumentType(argString(args, "type")),
		Content:    []byte(argString(args, "content")),
		Owner:      argString(args, "owner"),
		WorkflowID: argString(args, "workflow_id"),
		TeamID:     argString(args, "team_id"),
	}
	doc, err := s.app.Registry.Create(ctx, req)
	if err != nil {
		return errorResult("document creation failed: %v", err)
	}
	return marshalResult(doc)
}

func (s *Server) handleDocVersions(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	versions, err := s.app.Registry.Versions(argString(args, "root_id"))
	if err != nil {
		return errorResult("document lineage not found: %v", err)
	}
	return marshalResult(versions)
}

func (s *Server) handleHandoffCreate(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	req := handoff.CreateRequest{
		DocumentID: argString(args, "document_id"),
		From:       argString(args, "from"),
		To:         argString(args, "to"),
		Reason:     argString(args, "reason"),
		Priority:   parsePriority(argString(args, "priority")),
	}
	h, err := s.app.Handoffs.Create(ctx, req)
	if err != nil {
		return errorResult("handoff creation failed: %v", err)
	}
	return marshalResult(h)
}

func (s *Server) handleHandoffAccept(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	h, err := s.app.Handoffs.Accept(ctx, argString(args, "handoff_id"))
	if err != nil {
		return errorResult("handoff accept failed: %v", err)
	}
	return marshalResult(h)
}

func (s *Server) handleGateEvaluate(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	req := quality.EvaluateRequest{
		GateID:   argString(args, "gate_name"),
		Target:   argString(args, "target"),
		Assessor: argString(args, "assessor"),
	}
	report, err := s.app.Gate.Evaluate(ctx, req)
	if err != nil {
		return errorResult("gate evaluation failed: %v", err)
	}
	return marshalResult(report)
}

func (s *Server) handleTeamBroadcast(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	teamID := argString(args, "team_id")
	if teamID == "" {
		return errorResult("team_id is required")
	}
	record := s.app.Teamproto.Broadcast(ctx, teamID, argString(args, "sender"), argString(args, "message"))
	return marshalResult(record)
}

func (s *Server) handleTeamStatusReport(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	teamID := argString(args, "team_id")
	agentID := argString(args, "agent_id")
	if teamID == "" || agentID == "" {
		return errorResult("team_id and agent_id are required")
	}
	s.app.Teamproto.ReportStatus(teamID, teamproto.StatusReport{
		AgentID:  agentID,
		Status:   argString(args, "state"),
		Progress: argFloat(args, "progress", 0),
	})
	return marshalResult(map[string]string{"status": "recorded"})
}

func (s *Server) handleTeamStatusAggregate(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	teamID := argString(args, "team_id")
	if teamID == "" {
		return errorResult("team_id is required")
	}
	return marshalResult(s.app.Teamproto.AggregateStatus(teamID))
}

func (s *Server) handleVoteCreate(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	teamID := argString(args, "team_id")
	proposal := argString(args, "proposal")
	if teamID == "" || proposal == "" {
		return errorResult("team_id and proposal are required")
	}

	deadline := time.Now().UTC().Add(5 * time.Minute)
	if raw := argString(args, "deadline"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return errorResult("invalid deadline: %v", err)
		}
		deadline = parsed
	}

	threshold := argFloat(args, "threshold", 0.5)
	v := s.app.Teamproto.CreateVote(teamID, proposal, argInt(args, "total_members", 1), deadline, threshold,
		argBool(args, "allow_veto"), argBool(args, "anonymous"))
	return marshalResult(v)
}

func (s *Server) handleVoteSubmit(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	voteID := argString(args, "vote_id")
	agentID := argString(args, "agent_id")
	if voteID == "" || agentID == "" {
		return errorResult("vote_id and agent_id are required")
	}
	option := teamproto.VoteOption(argString(args, "option"))
	if err := s.app.Teamproto.Submit(voteID, agentID, option, argString(args, "reason"), time.Now().UTC()); err != nil {
		return errorResult("vote submit failed: %v", err)
	}
	return marshalResult(map[string]string{"status": "recorded"})
}

func (s *Server) handleVoteTally(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	voteID := argString(args, "vote_id")
	if voteID == "" {
		return errorResult("vote_id is required")
	}
	result, err := s.app.Teamproto.Tally(voteID)
	if err != nil {
		return errorResult("vote tally failed: %v", err)
	}
	return marshalResult(result)
}
