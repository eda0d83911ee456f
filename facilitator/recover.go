package facilitator

import (
	"context"
	"fmt"

	"github.com/x402cards/paygate"
)

// PanicError reports a facilitator call that panicked. It matches
// x402.ErrFacilitatorUnavailable.
type PanicError struct {
	Op    string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("facilitator %s panicked", e.Op)
}

func (e *PanicError) Unwrap() error {
	return x402.ErrFacilitatorUnavailable
}

// Recovering wraps f so that a panic in any of its calls comes back as a *PanicError.
// A nil f stays nil.
func Recovering(f Interface) Interface {
	switch f.(type) {
	case nil, recovering:
		return f
	}
	return recovering{next: f}
}

type recovering struct {
	next Interface
}

func (r recovering) Verify(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (resp *VerifyResponse, err error) {
	defer recoverInto("verify", &err)
	return r.next.Verify(ctx, payment, requirement)
}

func (r recovering) Settle(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (resp *x402.SettlementResponse, err error) {
	defer recoverInto("settle", &err)
	return r.next.Settle(ctx, payment, requirement)
}

func (r recovering) Supported(ctx context.Context) (resp *SupportedResponse, err error) {
	defer recoverInto("supported", &err)
	return r.next.Supported(ctx)
}

func recoverInto(op string, err *error) {
	if v := recover(); v != nil {
		*err = &PanicError{Op: op, Value: v}
	}
}
