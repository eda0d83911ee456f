// Package mcp holds the x402 conventions for paid MCP tools: the _meta keys that
// carry proofs and receipts and the JSON-RPC payment error.
package mcp

import "github.com/x402cards/paygate"

const (
	// MetaKeyPayment is the key for the proof in tools/call params._meta.
	MetaKeyPayment = "x402/payment"

	// MetaKeyPaymentResponse is the key for the receipt in result._meta.
	MetaKeyPaymentResponse = "x402/payment-response"
)

// JSON-RPC error codes used by paid tools.
const (
	CodePaymentRequired = 402
	CodeParseError      = -32700
	CodeInvalidParams   = -32602
)

// PaymentRequiredData is the data member of a 402 JSON-RPC error. It mirrors the
// HTTP 402 body.
type PaymentRequiredData struct {
	X402Version int                       `json:"x402Version"`
	Error       string                    `json:"error"`
	Accepts     []x402.PaymentRequirement `json:"accepts"`
	Payer       string                    `json:"payer,omitempty"`
}
