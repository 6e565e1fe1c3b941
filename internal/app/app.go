// Package app wires every component into a single in-process instance,
// shared by the MCP tool server (cmd/orchestratord) and the CLI
// (cmd/teamctl) — two front doors onto the same library, the way the
// teacher's team-cli and mcp-server both sit in front of one backend.
package app

import (
	"context"

	"github.com/fluxteam/orchestrator-core/internal/agentpool"
	"github.com/fluxteam/orchestrator-core/internal/agilemetrics"
	"github.com/fluxteam/orchestrator-core/internal/audit"
	"github.com/fluxteam/orchestrator-core/internal/cache"
	"github.com/fluxteam/orchestrator-core/internal/circuitbreaker"
	"github.com/fluxteam/orchestrator-core/internal/config"
	"github.com/fluxteam/orchestrator-core/internal/controlplane"
	"github.com/fluxteam/orchestrator-core/internal/database"
	"github.com/fluxteam/orchestrator-core/internal/handoff"
	"github.com/fluxteam/orchestrator-core/internal/models"
	"github.com/fluxteam/orchestrator-core/internal/perf"
	"github.com/fluxteam/orchestrator-core/internal/quality"
	"github.com/fluxteam/orchestrator-core/internal/registry"
	"github.com/fluxteam/orchestrator-core/internal/retro"
	"github.com/fluxteam/orchestrator-core/internal/team"
	"github.com/fluxteam/orchestrator-core/internal/teamproto"
	"github.com/fluxteam/orchestrator-core/internal/workflow"
)

// App holds every component the MCP tool surface and the CLI drive.
type App struct {
	Config *config.Config

	Registry     *registry.Registry
	Handoffs     *handoff.Protocol
	Pool         *agentpool.Pool
	Teams        *team.Orchestrator
	Teamproto    *teamproto.Protocol
	Workflows    *workflow.Engine
	Gate         *quality.Gate
	Metrics      *agilemetrics.Recorder
	Retro        *retro.Analyzer
	Perf         *perf.Monitor
	Breakers     *circuitbreaker.Manager
	ControlPlane controlplane.ControlPlane
	Audit        *audit.Logger
}

// New builds an App from configuration, defaulting the Control Plane to
// the in-process NoopControlPlane (spec.md §4.9 leaves the resource
// allocator / policy gate "not specified") wrapped in the same circuit
// breaker every call to an external collaborator goes through. db and cch
// are the process's optional Postgres/Redis connections (nil when the CLI
// front door runs without either backend); when present, they extend
// quality/agile metrics history into Postgres and the Team Protocol's
// locks/semaphores across orchestrator processes via Redis.
func New(cfg *config.Config, db *database.DB, cch *cache.Client) *App {
	breakers := circuitbreaker.NewManager(cfg)

	capacity := controlplane.Resources{
		Cores:       float64(cfg.PoolMaxSize) * cfg.ResourceCoresPerAgent,
		MemoryMB:    float64(cfg.PoolMaxSize) * cfg.ResourceMemoryMBPerAgent,
		StorageMB:   float64(cfg.PoolMaxSize) * cfg.ResourceStorageMBPerAgent,
		BandwidthMb: float64(cfg.PoolMaxSize) * cfg.ResourceBandwidthMbPerAgent,
	}
	noop := controlplane.NewNoopControlPlane(capacity)
	control := controlplane.NewBreakerWrapped(noop, breakers.ControlPlaneBreaker)

	pool := agentpool.New(control, agentpool.Config{
		MaxSize:          cfg.PoolMaxSize,
		AutoScale:        cfg.PoolAutoScale,
		PerformanceFloor: cfg.PoolPerformanceFloor,
		PerAgentCost: controlplane.Resources{
			Cores: cfg.ResourceCoresPerAgent, MemoryMB: cfg.ResourceMemoryMBPerAgent,
			StorageMB: cfg.ResourceStorageMBPerAgent, BandwidthMb: cfg.ResourceBandwidthMbPerAgent,
		},
	}, cfg.PoolInitialSize)

	reg := registry.New(registry.NewFileStore(cfg.StateDir + "/documents/registry.blob"))
	handoffs := handoff.New(reg)

	teams := team.New(pool, control, team.Config{
		MinSize:             cfg.TeamMinSize,
		MaxSize:             cfg.TeamMaxSize,
		MaxTeams:            cfg.TeamMaxTeams,
		LeaderThreshold:     cfg.TeamLeaderThreshold,
		AutoDissolveIdle:    cfg.TeamAutoDissolveIdle,
		PerformingThreshold: cfg.TeamPerformingThreshold,
		BaseResources: controlplane.Resources{
			Cores: cfg.ResourceCoresPerAgent, MemoryMB: cfg.ResourceMemoryMBPerAgent,
		},
		PerMemberResources: controlplane.Resources{
			Cores: cfg.ResourceCoresPerAgent, MemoryMB: cfg.ResourceMemoryMBPerAgent,
			StorageMB: cfg.ResourceStorageMBPerAgent, BandwidthMb: cfg.ResourceBandwidthMbPerAgent,
		},
	})

	gate := quality.New(quality.NewFileStore(cfg.StateDir + "/quality"))
	gate.RegisterGate(defaultStoryGate())
	gate.RegisterGate(defaultReleaseGate())

	engine := workflow.New(docAdapter{reg}, teams, handoffs, gateAdapter{gate})

	metricsStore := agilemetrics.New()
	retroAnalyzer := retro.New(nil, nil)
	perfMonitor := perf.New(24, nil)

	protocol := teamproto.New()
	if cfg.RedisEnabled && cch != nil {
		protocol.SetDistBackend(cch.NewDistBackend())
	}

	var auditLogger *audit.Logger
	if cfg.EnableAuditLogging {
		auditLogger = audit.NewLogger(cfg.AuditBufferSize)
		teams.SetAudit(auditLogger)
		handoffs.SetAudit(auditLogger)
		gate.SetAudit(auditLogger)
	}

	if cfg.DBEnabled && db != nil {
		mirror := database.NewHistoryMirror(db)
		gate.SetMirror(mirror)
		metricsStore.SetMirror(mirror)
	}

	return &App{
		Config:       cfg,
		Registry:     reg,
		Handoffs:     handoffs,
		Pool:         pool,
		Teams:        teams,
		Teamproto:    protocol,
		Workflows:    engine,
		Gate:         gate,
		Metrics:      metricsStore,
		Retro:        retroAnalyzer,
		Perf:         perfMonitor,
		Breakers:     breakers,
		ControlPlane: control,
		Audit:        auditLogger,
	}
}

// docAdapter narrows *registry.Registry to workflow.DocumentStore, translating
// between the two packages' independently-declared (but field-compatible)
// SearchFilter types.
type docAdapter struct{ reg *registry.Registry }

func (d docAdapter) Search(filter workflow.SearchFilter) []*models.Document {
	return d.reg.Search(registry.SearchFilter{Type: filter.Type, TeamID: filter.TeamID})
}

func (d docAdapter) Get(id string) (*models.Document, error) { return d.reg.Get(id) }

// gateAdapter narrows *quality.Gate to workflow.GateRunner.
type gateAdapter struct{ gate *quality.Gate }

func (g gateAdapter) Evaluate(ctx context.Context, req workflow.GateRequest) (*models.GateReport, error) {
	return g.gate.Evaluate(ctx, quality.EvaluateRequest{
		GateID:   req.GateID,
		Target:   req.Target,
		Assessor: req.Assessor,
	})
}

func defaultStoryGate() models.QualityGate {
	return models.QualityGate{
		ID:   "default",
		Kind: models.GateStory,
		Thresholds: models.Thresholds{
			MinCoverage:         0.8,
			MinTestCoverage:     0.8,
			MaxCriticalIssues:   0,
			MaxHighIssues:       2,
			MinSecurityScore:    70,
			MinPerformanceScore: 60,
			MinOverallScore:     70,
		},
	}
}

func defaultReleaseGate() models.QualityGate {
	g := defaultStoryGate()
	g.ID = "release"
	g.Kind = models.GateRelease
	g.Thresholds.MinOverallScore = 85
	g.Thresholds.MaxHighIssues = 0
	return g
}

// Shutdown releases background resources held by long-running components.
func (a *App) Shutdown(ctx context.Context) {
	a.Teams.Shutdown()
	a.Pool.Shutdown()
}
