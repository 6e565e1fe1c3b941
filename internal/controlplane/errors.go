package controlplane

import "github.com/fluxteam/orchestrator-core/internal/orcherr"

// ErrInsufficientResources is returned by ResourceAllocator.Reserve when
// the requested resources exceed what is currently available.
var ErrInsufficientResources = orcherr.New(orcherr.ResourceExhausted, "insufficient resources")
