package controlplane

import (
	"context"

	"github.com/sony/gobreaker"

	"github.com/fluxteam/orchestrator-core/internal/circuitbreaker"
	"github.com/fluxteam/orchestrator-core/internal/models"
	"github.com/fluxteam/orchestrator-core/internal/obsmetrics"
	"github.com/fluxteam/orchestrator-core/internal/orcherr"
)

// BreakerWrapped decorates a ControlPlane implementation with a circuit
// breaker, per SPEC_FULL.md §1.7: the Control Plane's collaborators are
// explicitly unspecified external services and may be slow or flaky.
type BreakerWrapped struct {
	inner   ControlPlane
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerWrapped wraps inner with the given circuit breaker.
func NewBreakerWrapped(inner ControlPlane, breaker *gobreaker.CircuitBreaker) *BreakerWrapped {
	return &BreakerWrapped{inner: inner, breaker: breaker}
}

func (b *BreakerWrapped) Reserve(ctx context.Context, teamID string, resources Resources, priority models.Priority) (*AllocationHandle, error) {
	var handle *AllocationHandle
	err := circuitbreaker.Execute(ctx, b.breaker, func() error {
		var innerErr error
		handle, innerErr = b.inner.Reserve(ctx, teamID, resources, priority)
		return innerErr
	})
	obsmetrics.RecordCircuitBreakerState("control-plane", circuitbreaker.State(b.breaker))
	if err == gobreaker.ErrOpenState {
		return nil, orcherr.Wrap(orcherr.ResourceExhausted, "control plane circuit open", err)
	}
	return handle, err
}

func (b *BreakerWrapped) Release(ctx context.Context, handle *AllocationHandle) error {
	return circuitbreaker.Execute(ctx, b.breaker, func() error {
		return b.inner.Release(ctx, handle)
	})
}

func (b *BreakerWrapped) Available(ctx context.Context) (Resources, error) {
	var r Resources
	err := circuitbreaker.Execute(ctx, b.breaker, func() error {
		var innerErr error
		r, innerErr = b.inner.Available(ctx)
		return innerErr
	})
	return r, err
}

func (b *BreakerWrapped) Validate(ctx context.Context, decision Decision) (PolicyResult, error) {
	var result PolicyResult
	err := circuitbreaker.Execute(ctx, b.breaker, func() error {
		var innerErr error
		result, innerErr = b.inner.Validate(ctx, decision)
		return innerErr
	})
	if err == gobreaker.ErrOpenState {
		return PolicyResult{Approved: false, Reasons: []string{"control plane unavailable"}},
			orcherr.Wrap(orcherr.PolicyDenied, "control plane circuit open", err)
	}
	return result, err
}
