package circuitbreaker

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// Execute runs operation through breaker, cancellable via ctx.
func Execute(ctx context.Context, breaker *gobreaker.CircuitBreaker, operation func() error) error {
	_, err := breaker.Execute(func() (interface{}, error) {
		done := make(chan error, 1)
		go func() { done <- operation() }()

		select {
		case err := <-done:
			return nil, err
		case <-ctx.Done():
			return nil, fmt.Errorf("operation cancelled: %w", ctx.Err())
		}
	})
	return err
}

// ExecuteWithRetry runs operation through breaker with linearly increasing
// backoff between retries, up to maxRetries. It does not retry once the circuit trips open.
func ExecuteWithRetry(ctx context.Context, breaker *gobreaker.CircuitBreaker, maxRetries int, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := Execute(ctx, breaker, operation)
		if err == nil {
			return nil
		}
		lastErr = err

		if err == gobreaker.ErrOpenState {
			return fmt.Errorf("circuit breaker is open: %w", err)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("operation cancelled: %w", ctx.Err())
		}

		if attempt < maxRetries-1 {
			backoff := time.Duration(attempt+1) * 100 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("operation cancelled during retry: %w", ctx.Err())
			}
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", maxRetries, lastErr)
}
