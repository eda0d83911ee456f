package mcp

import (
	"errors"
	"fmt"

	"github.com/x402cards/paygate"
)

var (
	// ErrToolExecutionFailed indicates that the tool reported an error, so its
	// payment was not settled.
	ErrToolExecutionFailed = errors.New("tool execution failed")
)

// PaymentError wraps an x402 error with the tool it occurred on.
type PaymentError struct {
	Err  error
	Tool string
	Kind x402.FailureKind
}

func (e *PaymentError) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("payment error for tool %s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("payment error: %v", e.Err)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// IsPaymentError checks if an error is payment-related.
func IsPaymentError(err error) bool {
	if err == nil {
		return false
	}
	var paymentErr *PaymentError
	return errors.As(err, &paymentErr) ||
		errors.Is(err, x402.ErrPaymentRequired) ||
		errors.Is(err, x402.ErrMalformedHeader) ||
		errors.Is(err, x402.ErrNoMatchingRequirement) ||
		errors.Is(err, x402.ErrVerificationFailed) ||
		errors.Is(err, x402.ErrSettlementFailed) ||
		errors.Is(err, x402.ErrFacilitatorUnavailable)
}
