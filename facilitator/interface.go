// Package facilitator defines the verify/settle contract the gateway delegates to and an
// HTTP client for remote facilitator services.
package facilitator

import (
	"context"
	"fmt"

	"github.com/x402cards/paygate"
)

// Interface defines the facilitator contract for payment verification and settlement.
// The HTTP gateway, the edge gate and the MCP server all depend on it.
type Interface interface {
	// Verify checks a payment authorization without executing the transaction.
	// A rejected payment is a successful call with IsValid false.
	Verify(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*VerifyResponse, error)

	// Settle executes a verified payment on chain.
	Settle(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*x402.SettlementResponse, error)

	// Supported queries the facilitator for supported payment kinds.
	Supported(ctx context.Context) (*SupportedResponse, error)
}

// Request is the body posted to /verify and /settle.
type Request struct {
	X402Version         int                     `json:"x402Version"`
	PaymentPayload      x402.PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirement `json:"paymentRequirements"`
}

// VerifyResponse contains the payment verification result from the facilitator.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SupportedKind describes a supported payment type with its configuration.
type SupportedKind struct {
	X402Version int            `json:"x402Version"`
	Scheme      string         `json:"scheme"`
	Network     string         `json:"network"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// SupportedResponse lists all payment types supported by the facilitator.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// Enrich merges facilitator-provided extra data (such as the SVM feePayer) into the
// route's Extra for the exact scheme on its network. Values already on the route win.
func (s *SupportedResponse) Enrich(route x402.RouteConfig) x402.RouteConfig {
	if s == nil {
		return route
	}
	for _, kind := range s.Kinds {
		if kind.Scheme != x402.SchemeExact || kind.Network != route.Network || len(kind.Extra) == 0 {
			continue
		}
		extra := make(map[string]any, len(route.Extra)+len(kind.Extra))
		for k, v := range kind.Extra {
			extra[k] = v
		}
		for k, v := range route.Extra {
			extra[k] = v
		}
		route.Extra = extra
		break
	}
	return route
}

// EnrichRoute asks f which extra data it requires for route's network and merges it
// into the route. Only SVM routes need it, so other networks return unchanged
// without a call. On failure the route is returned unchanged with the error.
func EnrichRoute(ctx context.Context, f Interface, route x402.RouteConfig) (x402.RouteConfig, error) {
	chain, err := x402.LookupChain(route.Network)
	if err != nil || chain.Type != x402.NetworkTypeSVM {
		return route, nil
	}
	if f == nil {
		return route, x402.ErrFacilitatorUnavailable
	}
	supported, err := Recovering(f).Supported(ctx)
	if err != nil {
		return route, fmt.Errorf("failed to fetch supported payment types: %w", err)
	}
	return supported.Enrich(route), nil
}
