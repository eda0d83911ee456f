// Package retry provides generic retry logic with exponential backoff for idempotent
// outbound calls. Payment verification and settlement are never retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Policy holds retry configuration.
type Policy struct {
	MaxAttempts  int           // Maximum number of attempts (including initial attempt)
	InitialDelay time.Duration // Initial delay between retries
	MaxDelay     time.Duration // Maximum delay between retries
	Multiplier   float64       // Multiplier for exponential backoff
}

// DefaultPolicy is used by the collaborator clients unless configured otherwise.
var DefaultPolicy = Policy{
	MaxAttempts:  3,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2.0,
}

// IsRetryable determines if an error should trigger a retry.
type IsRetryable func(error) bool

// StatusError records a non-success HTTP status from an upstream service.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Service, e.StatusCode)
}

// Transient retries network errors, 429 and 5xx responses.
func Transient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// Do executes fn until it succeeds, returns a non-retryable error, the attempts are
// exhausted or ctx is done.
func Do[T any](ctx context.Context, policy Policy, isRetryable IsRetryable, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := policy.InitialDelay
	attempts := max(policy.MaxAttempts, 1)

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("context cancelled: %w", err)
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}

		// Don't sleep after last attempt
		if attempt < attempts-1 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
				delay = time.Duration(float64(delay) * policy.Multiplier)
				if policy.MaxDelay > 0 && delay > policy.MaxDelay {
					delay = policy.MaxDelay
				}
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			}
		}
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}
