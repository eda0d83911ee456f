// Package facilitatortest provides an in-memory facilitator for tests.
package facilitatortest

import (
	"context"
	"sync"

	"github.com/x402cards/paygate"
	"github.com/x402cards/paygate/facilitator"
)

// Fake records calls and answers with the configured functions. The zero value
// verifies and settles every payment successfully.
type Fake struct {
	VerifyFunc    func(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*facilitator.VerifyResponse, error)
	SettleFunc    func(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*x402.SettlementResponse, error)
	SupportedFunc func(ctx context.Context) (*facilitator.SupportedResponse, error)

	mu          sync.Mutex
	verifyCalls []x402.PaymentRequirement
	settleCalls []x402.PaymentRequirement
	settleCtx   []context.Context
}

var _ facilitator.Interface = (*Fake)(nil)

// Payer is the address the default Fake reports.
const Payer = "0x857b06519E91e3A54538791bDbb0E22373e36b66"

// Transaction is the hash the default Fake reports.
const Transaction = "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"

func (f *Fake) Verify(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
	f.mu.Lock()
	f.verifyCalls = append(f.verifyCalls, requirement)
	f.mu.Unlock()

	if f.VerifyFunc != nil {
		return f.VerifyFunc(ctx, payment, requirement)
	}
	return &facilitator.VerifyResponse{IsValid: true, Payer: Payer}, nil
}

func (f *Fake) Settle(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	f.mu.Lock()
	f.settleCalls = append(f.settleCalls, requirement)
	f.settleCtx = append(f.settleCtx, ctx)
	f.mu.Unlock()

	if f.SettleFunc != nil {
		return f.SettleFunc(ctx, payment, requirement)
	}
	return &x402.SettlementResponse{
		Success:     true,
		Transaction: Transaction,
		Network:     requirement.Network,
		Payer:       Payer,
	}, nil
}

func (f *Fake) Supported(ctx context.Context) (*facilitator.SupportedResponse, error) {
	if f.SupportedFunc != nil {
		return f.SupportedFunc(ctx)
	}
	return &facilitator.SupportedResponse{}, nil
}

// VerifyCalls returns the requirements Verify was called with.
func (f *Fake) VerifyCalls() []x402.PaymentRequirement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]x402.PaymentRequirement(nil), f.verifyCalls...)
}

// SettleCalls returns the requirements Settle was called with.
func (f *Fake) SettleCalls() []x402.PaymentRequirement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]x402.PaymentRequirement(nil), f.settleCalls...)
}

// SettleContexts returns the contexts Settle was called with.
func (f *Fake) SettleContexts() []context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]context.Context(nil), f.settleCtx...)
}
