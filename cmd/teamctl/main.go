// Command teamctl is the CLI front door onto the orchestration core: it
// calls straight into internal/app with no RPC hop, the same library the
// MCP server fronts, following the teacher's team-cli / mcp-server split.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/fluxteam/orchestrator-core/internal/app"
	"github.com/fluxteam/orchestrator-core/internal/config"
	"github.com/fluxteam/orchestrator-core/internal/handoff"
	"github.com/fluxteam/orchestrator-core/internal/models"
	"github.com/fluxteam/orchestrator-core/internal/orcherr"
	"github.com/fluxteam/orchestrator-core/internal/quality"
	"github.com/fluxteam/orchestrator-core/internal/registry"
	"github.com/fluxteam/orchestrator-core/internal/team"
	"github.com/fluxteam/orchestrator-core/internal/teamproto"
)

var (
	version = "dev"

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5E7EB"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

// exitCoded is returned by a command's RunE when the error should map to a
// specific process exit code instead of the generic "other error" (1).
type exitCoded struct {
	code int
	err  error
}

func (e *exitCoded) Error() string { return e.err.Error() }
func (e *exitCoded) Unwrap() error { return e.err }

// exitCodeFor maps spec.md §6's exit-code table from an orcherr.Kind.
func exitCodeFor(err error) int {
	switch orcherr.KindOf(err) {
	case orcherr.InvalidArgument, orcherr.ValidationFailed:
		return 2
	case orcherr.NotFound:
		return 3
	case orcherr.PolicyDenied, orcherr.PermissionDenied:
		return 4
	case orcherr.ResourceExhausted:
		return 5
	default:
		return 1
	}
}

func wrapExit(err error) error {
	if err == nil {
		return nil
	}
	return &exitCoded{code: exitCodeFor(err), err: err}
}

func main() {
	var a *app.App

	rootCmd := &cobra.Command{
		Use:     "teamctl",
		Short:   "Orchestrator control CLI",
		Long:    "teamctl drives team formation, document lifecycle, handoffs, and quality gates directly against the orchestration core.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return &exitCoded{code: 2, err: fmt.Errorf("load configuration: %w", err)}
			}
			a = app.New(cfg, nil, nil)
			return nil
		},
	}

	rootCmd.AddCommand(teamCmd(&a))
	rootCmd.AddCommand(docCmd(&a))
	rootCmd.AddCommand(handoffCmd(&a))
	rootCmd.AddCommand(gateCmd(&a))
	rootCmd.AddCommand(voteCmd(&a))

	if err := rootCmd.Execute(); err != nil {
		var ec *exitCoded
		code := 1
		if ok := errorsAs(err, &ec); ok {
			code = ec.code
		}
		log.Error(errorStyle.Render(err.Error()))
		os.Exit(code)
	}
}

func errorsAs(err error, target **exitCoded) bool {
	for err != nil {
		if e, ok := err.(*exitCoded); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func teamCmd(a **app.App) *cobra.Command {
	cmd := &cobra.Command{Use: "team", Short: "Manage teams"}
	cmd.AddCommand(teamFormCmd(a))
	cmd.AddCommand(teamDissolveCmd(a))
	return cmd
}

func teamFormCmd(a **app.App) *cobra.Command {
	var mission string
	var size int
	var skills string

	cmd := &cobra.Command{
		Use:   "form",
		Short: "Form a new team from the agent pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			if mission == "" {
				return wrapExit(orcherr.InvalidArgumentf("--mission is required"))
			}
			req := team.FormRequest{
				Mission:        mission,
				Type:           models.TeamCrossFunctional,
				Size:           size,
				RequiredSkills: splitCSV(skills),
				Priority:       models.PriorityMedium,
			}
			t, err := (*a).Teams.FormTeam(context.Background(), req)
			if err != nil {
				return wrapExit(err)
			}
			fmt.Println(successStyle.Render("team formed"))
			fmt.Printf("%s %s\n", textStyle.Render("id:"), t.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&mission, "mission", "", "Team mission statement (required)")
	cmd.Flags().IntVar(&size, "size", 3, "Desired team size")
	cmd.Flags().StringVar(&skills, "skills", "", "Comma-separated required skills")
	cmd.MarkFlagRequired("mission")

	return cmd
}

func teamDissolveCmd(a **app.App) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "dissolve <id>",
		Short: "Dissolve an existing team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := (*a).Teams.DissolveTeam(context.Background(), args[0], reason)
			if err != nil {
				return wrapExit(err)
			}
			fmt.Println(successStyle.Render("team dissolved"))
			fmt.Printf("%s %s\n", textStyle.Render("state:"), t.State)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Dissolution reason")
	return cmd
}

func docCmd(a **app.App) *cobra.Command {
	cmd := &cobra.Command{Use: "doc", Short: "Manage documents"}
	cmd.AddCommand(docCreateCmd(a))
	cmd.AddCommand(docVersionsCmd(a))
	return cmd
}

func docCreateCmd(a **app.App) *cobra.Command {
	var title, docType, workflowID, teamID, content, owner string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new document in the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return wrapExit(orcherr.InvalidArgumentf("--title is required"))
			}
			if docType == "" {
				return wrapExit(orcherr.InvalidArgumentf("--type is required"))
			}
			doc, err := (*a).Registry.Create(context.Background(), registry.CreateRequest{
				Title:      title,
				Type:       models.DocumentType(docType),
				Content:    []byte(content),
				Owner:      owner,
				WorkflowID: workflowID,
				TeamID:     teamID,
			})
			if err != nil {
				return wrapExit(err)
			}
			fmt.Println(successStyle.Render("document created"))
			fmt.Printf("%s %s\n", textStyle.Render("id:"), doc.ID)
			fmt.Printf("%s %s\n", textStyle.Render("root_id:"), doc.RootID)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Document title (required)")
	cmd.Flags().StringVar(&docType, "type", "", "Document type (required)")
	cmd.Flags().StringVar(&workflowID, "workflow", "", "Owning workflow id")
	cmd.Flags().StringVar(&teamID, "team", "", "Owning team id")
	cmd.Flags().StringVar(&content, "content", "", "Document content")
	cmd.Flags().StringVar(&owner, "owner", "teamctl", "Creating agent id")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("type")

	return cmd
}

func docVersionsCmd(a **app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <root-id>",
		Short: "List every version of a document lineage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := (*a).Registry.Versions(args[0])
			if err != nil {
				return wrapExit(err)
			}
			fmt.Println(titleStyle.Render(fmt.Sprintf("%d version(s)", len(versions))))
			for _, v := range versions {
				fmt.Printf("%s  v%d  %s\n", v.ID, v.Version, v.Status)
			}
			return nil
		},
	}
}

func handoffCmd(a **app.App) *cobra.Command {
	cmd := &cobra.Command{Use: "handoff", Short: "Manage handoffs"}
	cmd.AddCommand(handoffCreateCmd(a))
	return cmd
}

func handoffCreateCmd(a **app.App) *cobra.Command {
	var to, from, reason, priority, deadline string

	cmd := &cobra.Command{
		Use:   "create <doc>",
		Short: "Create a handoff transferring a document to another agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if to == "" {
				return wrapExit(orcherr.InvalidArgumentf("--to is required"))
			}
			req := handoff.CreateRequest{
				DocumentID: args[0],
				From:       from,
				To:         to,
				Reason:     reason,
				Priority:   parsePriority(priority),
			}
			if deadline != "" {
				ts, err := time.Parse(time.RFC3339, deadline)
				if err != nil {
					return wrapExit(orcherr.InvalidArgumentf("--deadline must be RFC3339, got %q", deadline))
				}
				req.Deadline = &ts
			}
			h, err := (*a).Handoffs.Create(context.Background(), req)
			if err != nil {
				return wrapExit(err)
			}
			fmt.Println(successStyle.Render("handoff created"))
			fmt.Printf("%s %s\n", textStyle.Render("id:"), h.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Receiving agent id (required)")
	cmd.Flags().StringVar(&from, "from", "teamctl", "Sending agent id")
	cmd.Flags().StringVar(&reason, "reason", "", "Handoff reason")
	cmd.Flags().StringVar(&priority, "priority", "medium", "Priority: low, medium, high, critical")
	cmd.Flags().StringVar(&deadline, "deadline", "", "Deadline timestamp (RFC3339)")
	cmd.MarkFlagRequired("to")

	return cmd
}

func gateCmd(a **app.App) *cobra.Command {
	cmd := &cobra.Command{Use: "gate", Short: "Manage quality gates"}
	cmd.AddCommand(gateEvaluateCmd(a))
	return cmd
}

func gateEvaluateCmd(a **app.App) *cobra.Command {
	var target, assessor string

	cmd := &cobra.Command{
		Use:   "evaluate <gate-name>",
		Short: "Run a quality gate evaluation against a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				return wrapExit(orcherr.InvalidArgumentf("--target is required"))
			}
			report, err := (*a).Gate.Evaluate(context.Background(), quality.EvaluateRequest{
				GateID:   args[0],
				Target:   target,
				Assessor: assessor,
			})
			if err != nil {
				return wrapExit(err)
			}
			fmt.Println(titleStyle.Render("gate evaluation"))
			fmt.Printf("%s %s\n", textStyle.Render("decision:"), report.Decision)
			fmt.Printf("%s %.1f\n", textStyle.Render("overall score:"), report.Metrics.OverallScore)
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "Target id (required)")
	cmd.Flags().StringVar(&assessor, "assessor", "teamctl", "Assessing agent id")
	cmd.MarkFlagRequired("target")

	return cmd
}

func voteCmd(a **app.App) *cobra.Command {
	cmd := &cobra.Command{Use: "vote", Short: "Open and resolve team votes"}
	cmd.AddCommand(voteCreateCmd(a))
	cmd.AddCommand(voteSubmitCmd(a))
	cmd.AddCommand(voteTallyCmd(a))
	return cmd
}

func voteCreateCmd(a **app.App) *cobra.Command {
	var teamID string
	var totalMembers int
	var threshold float64
	var deadline string
	var allowVeto, anonymous bool

	cmd := &cobra.Command{
		Use:   "create <proposal>",
		Short: "Open a new team vote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if teamID == "" {
				return wrapExit(orcherr.InvalidArgumentf("--team is required"))
			}
			dl := time.Now().UTC().Add(5 * time.Minute)
			if deadline != "" {
				ts, err := time.Parse(time.RFC3339, deadline)
				if err != nil {
					return wrapExit(orcherr.InvalidArgumentf("--deadline must be RFC3339, got %q", deadline))
				}
				dl = ts
			}
			v := (*a).Teamproto.CreateVote(teamID, args[0], totalMembers, dl, threshold, allowVeto, anonymous)
			fmt.Println(successStyle.Render("vote opened"))
			fmt.Printf("%s %s\n", textStyle.Render("id:"), v.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&teamID, "team", "", "Team id (required)")
	cmd.Flags().IntVar(&totalMembers, "total-members", 1, "Total eligible voters")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.5, "Fraction of total-members required to pass")
	cmd.Flags().StringVar(&deadline, "deadline", "", "Deadline timestamp (RFC3339, default +5m)")
	cmd.Flags().BoolVar(&allowVeto, "allow-veto", false, "Allow a single VETO to reject the vote")
	cmd.Flags().BoolVar(&anonymous, "anonymous", false, "Omit reasons from the tally")
	cmd.MarkFlagRequired("team")

	return cmd
}

func voteSubmitCmd(a **app.App) *cobra.Command {
	var agentID, option, reason string

	cmd := &cobra.Command{
		Use:   "submit <vote-id>",
		Short: "Submit a ballot on an open vote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if agentID == "" {
				return wrapExit(orcherr.InvalidArgumentf("--agent is required"))
			}
			err := (*a).Teamproto.Submit(args[0], agentID, teamproto.VoteOption(option), reason, time.Now().UTC())
			if err != nil {
				return wrapExit(err)
			}
			fmt.Println(successStyle.Render("ballot recorded"))
			return nil
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "Voting agent id (required)")
	cmd.Flags().StringVar(&option, "option", "yes", "yes, no, abstain, or veto")
	cmd.Flags().StringVar(&reason, "reason", "", "Optional justification")
	cmd.MarkFlagRequired("agent")

	return cmd
}

func voteTallyCmd(a **app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "tally <vote-id>",
		Short: "Compute a vote's current outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := (*a).Teamproto.Tally(args[0])
			if err != nil {
				return wrapExit(err)
			}
			fmt.Println(titleStyle.Render("vote tally"))
			fmt.Printf("%s %s\n", textStyle.Render("outcome:"), result.Outcome)
			for option, count := range result.Counts {
				fmt.Printf("%s %s: %d\n", textStyle.Render("  "), option, count)
			}
			return nil
		},
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
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
