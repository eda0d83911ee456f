package retry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

var fastPolicy = Policy{
	MaxAttempts:  3,
	InitialDelay: time.Millisecond,
	MaxDelay:     5 * time.Millisecond,
	Multiplier:   2.0,
}

func always(error) bool { return true }

func TestDo(t *testing.T) {
	t.Run("succeeds on first attempt", func(t *testing.T) {
		calls := 0
		result, err := Do(context.Background(), fastPolicy, always, func(context.Context) (string, error) {
			calls++
			return "success", nil
		})
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		if result != "success" {
			t.Errorf("expected 'success', got %s", result)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("retries on retryable error", func(t *testing.T) {
		calls := 0
		result, err := Do(context.Background(), fastPolicy, always, func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("temporary error")
			}
			return 42, nil
		})
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		if result != 42 {
			t.Errorf("expected 42, got %d", result)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("respects max attempts", func(t *testing.T) {
		calls := 0
		policy := fastPolicy
		policy.MaxAttempts = 2
		persistent := errors.New("persistent error")

		_, err := Do(context.Background(), policy, always, func(context.Context) (string, error) {
			calls++
			return "", persistent
		})
		if !errors.Is(err, persistent) {
			t.Errorf("expected wrapped persistent error, got %v", err)
		}
		if calls != 2 {
			t.Errorf("expected 2 calls, got %d", calls)
		}
	})

	t.Run("does not retry non-retryable errors", func(t *testing.T) {
		calls := 0
		fatal := errors.New("fatal")
		_, err := Do(context.Background(), fastPolicy, func(err error) bool { return !errors.Is(err, fatal) },
			func(context.Context) (string, error) {
				calls++
				return "", fatal
			})
		if !errors.Is(err, fatal) {
			t.Errorf("expected fatal, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call (no retries), got %d", calls)
		}
	})

	t.Run("respects context cancellation before attempt", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		_, err := Do(ctx, fastPolicy, always, func(context.Context) (string, error) {
			calls++
			return "", errors.New("error")
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if calls != 0 {
			t.Errorf("expected 0 calls, got %d", calls)
		}
	})

	t.Run("zero attempts still runs once", func(t *testing.T) {
		calls := 0
		_, _ = Do(context.Background(), Policy{}, always, func(context.Context) (string, error) {
			calls++
			return "ok", nil
		})
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})
}

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &StatusError{Service: "fal", StatusCode: 429}, true},
		{"server error", &StatusError{Service: "fal", StatusCode: 503}, true},
		{"bad request", &StatusError{Service: "fal", StatusCode: 400}, false},
		{"network", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Transient(tt.err); got != tt.want {
				t.Errorf("Transient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Service: "openai", StatusCode: 500, Body: "oops"}
	if got := err.Error(); got != "openai: unexpected status 500: oops" {
		t.Errorf("Error() = %q", got)
	}
}
