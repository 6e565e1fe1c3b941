// Package controlplane defines the Control Plane interface (C9): the
// resource allocator and ethics/safety policy gate consumed by the Agent
// Pool, Team Orchestrator, and Workflow Engine. spec.md §4.9 leaves
// implementations unspecified; this package provides the interface
// abstractions plus a no-op default (spec.md §9, "Inheritance-via-
// optional-imports... make such collaborators interface abstractions
// provided by construction; a no-op implementation is the default").
package controlplane

import (
	"context"

	"github.com/fluxteam/orchestrator-core/internal/models"
)

// Resources is the resource vector reserved/released by the allocator.
type Resources struct {
	Cores     float64
	MemoryMB  float64
	StorageMB float64
	BandwidthMb float64
}

// Add returns the element-wise sum of r and other.
func (r Resources) Add(other Resources) Resources {
	return Resources{
		Cores:       r.Cores + other.Cores,
		MemoryMB:    r.MemoryMB + other.MemoryMB,
		StorageMB:   r.StorageMB + other.StorageMB,
		BandwidthMb: r.BandwidthMb + other.BandwidthMb,
	}
}

// Scale returns r scaled by n (e.g. per-agent cost times team size).
func (r Resources) Scale(n float64) Resources {
	return Resources{
		Cores:       r.Cores * n,
		MemoryMB:    r.MemoryMB * n,
		StorageMB:   r.StorageMB * n,
		BandwidthMb: r.BandwidthMb * n,
	}
}

// AllocationHandle identifies a held reservation, released via Release.
type AllocationHandle struct {
	ID        string
	TeamID    string
	Resources Resources
}

// Decision describes a policy gate request: what is about to happen.
type Decision struct {
	Kind    string // "team_formation", "handoff", "resource_escalation"
	TeamID  string
	Subject string
	Context map[string]any
}

// PolicyResult is the policy gate's verdict.
type PolicyResult struct {
	Approved bool
	Reasons  []string
}

// ResourceAllocator reserves and releases resources on behalf of teams.
// The core treats reservations as linearizable; partial failure is not
// supported (spec.md §4.9).
type ResourceAllocator interface {
	Reserve(ctx context.Context, teamID string, resources Resources, priority models.Priority) (*AllocationHandle, error)
	Release(ctx context.Context, handle *AllocationHandle) error
	Available(ctx context.Context) (Resources, error)
}

// PolicyGate validates ethics/safety decisions before team formation,
// sensitive handoffs, and resource escalations.
type PolicyGate interface {
	Validate(ctx context.Context, decision Decision) (PolicyResult, error)
}

// ControlPlane bundles both collaborator capabilities.
type ControlPlane interface {
	ResourceAllocator
	PolicyGate
}

// NoopControlPlane approves every policy decision and reserves resources
// unconditionally (bounded only by a configured capacity ceiling). It is
// the default collaborator when no external control plane is wired.
type NoopControlPlane struct {
	Capacity Resources
	used     Resources
}

// NewNoopControlPlane returns a control plane with the given capacity ceiling.
func NewNoopControlPlane(capacity Resources) *NoopControlPlane {
	return &NoopControlPlane{Capacity: capacity}
}

func (n *NoopControlPlane) Reserve(ctx context.Context, teamID string, resources Resources, priority models.Priority) (*AllocationHandle, error) {
	if n.Capacity.Cores > 0 && n.used.Cores+resources.Cores > n.Capacity.Cores {
		return nil, ErrInsufficientResources
	}
	n.used = n.used.Add(resources)
	return &AllocationHandle{ID: teamID, TeamID: teamID, Resources: resources}, nil
}

func (n *NoopControlPlane) Release(ctx context.Context, handle *AllocationHandle) error {
	if handle == nil {
		return nil
	}
	n.used.Cores -= handle.Resources.Cores
	n.used.MemoryMB -= handle.Resources.MemoryMB
	n.used.StorageMB -= handle.Resources.StorageMB
	n.used.BandwidthMb -= handle.Resources.BandwidthMb
	return nil
}

func (n *NoopControlPlane) Available(ctx context.Context) (Resources, error) {
	return Resources{
		Cores:       n.Capacity.Cores - n.used.Cores,
		MemoryMB:    n.Capacity.MemoryMB - n.used.MemoryMB,
		StorageMB:   n.Capacity.StorageMB - n.used.StorageMB,
		BandwidthMb: n.Capacity.BandwidthMb - n.used.BandwidthMb,
	}, nil
}

func (n *NoopControlPlane) Validate(ctx context.Context, decision Decision) (PolicyResult, error) {
	return PolicyResult{Approved: true}, nil
}
