package http

import (
	"context"

	"github.com/x402cards/paygate"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// PaymentContextKey is the context key for storing verified payment information.
const PaymentContextKey = contextKey("x402_payment")

// Payment is the verified payment a gated handler runs under.
type Payment struct {
	Payer       string
	Payload     x402.PaymentPayload
	Requirement x402.PaymentRequirement
}

// PaymentFromContext returns the verified payment stored by WithPayment or the edge gate.
func PaymentFromContext(ctx context.Context) (*Payment, bool) {
	p, ok := ctx.Value(PaymentContextKey).(*Payment)
	return p, ok
}

func contextWithPayment(ctx context.Context, p *Payment) context.Context {
	return context.WithValue(ctx, PaymentContextKey, p)
}
