package x402

import (
	"math/big"
	"time"
)

// Signer represents a payment signer for a specific blockchain.
type Signer interface {
	// Network returns the blockchain network identifier (e.g., "base", "solana").
	Network() string

	// Scheme returns the payment scheme identifier (currently "exact").
	Scheme() string

	// CanSign checks if this signer can satisfy the given payment requirements.
	CanSign(requirements *PaymentRequirement) bool

	// Sign creates a signed payment payload for the given requirements.
	Sign(requirements *PaymentRequirement) (*PaymentPayload, error)

	// GetPriority returns the signer's priority level. Lower numbers win.
	GetPriority() int

	GetTokens() []TokenConfig

	// GetMaxAmount returns the per-call spending limit, or nil if no limit is set.
	GetMaxAmount() *big.Int
}

// PaymentEventType identifies a client-side payment lifecycle event.
type PaymentEventType string

const (
	PaymentEventAttempt PaymentEventType = "attempt"
	PaymentEventSuccess PaymentEventType = "success"
	PaymentEventFailure PaymentEventType = "failure"
)

// PaymentEvent is delivered to client callbacks.
type PaymentEvent struct {
	Type      PaymentEventType
	Timestamp time.Time
	URL       string

	Network   string
	Scheme    string
	Amount    string
	Asset     string
	Recipient string

	Transaction string
	Payer       string

	Error    error
	Duration time.Duration
}

// PaymentCallback receives payment events.
type PaymentCallback func(event PaymentEvent)
