package x402

import (
	"math/big"
)

// X402Version is the protocol version spoken by the gateway.
const X402Version = 1

// SchemeExact is the only payment scheme currently defined by the protocol.
const SchemeExact = "exact"

// Header names used on the wire.
const (
	// PaymentHeader carries the base64-encoded PaymentPayload on requests.
	PaymentHeader = "X-PAYMENT"

	// PaymentResponseHeader carries the base64-encoded SettlementResponse on responses.
	PaymentResponseHeader = "X-PAYMENT-RESPONSE"
)

// InputSchemaType identifies the transport of a paid resource.
type InputSchemaType string

const (
	InputSchemaTypeHTTP InputSchemaType = "http"
	InputSchemaTypeMCP  InputSchemaType = "mcp"
)

// InputSchema describes how a client is expected to call the paid resource.
type InputSchema struct {
	Type         InputSchemaType `json:"type"`
	Method       string          `json:"method"`
	Discoverable bool            `json:"discoverable"`
}

// OutputSchema is advertised to clients and discovery services alongside a requirement.
type OutputSchema struct {
	Input  InputSchema    `json:"input"`
	Output map[string]any `json:"output,omitempty"`
}

// PaymentRequirement represents a single payment option from a 402 response.
type PaymentRequirement struct {
	// Scheme is the payment scheme identifier (always "exact" today).
	Scheme string `json:"scheme"`

	// Network is the blockchain network identifier (e.g., "base-sepolia", "solana").
	Network string `json:"network"`

	// MaxAmountRequired is the payment amount in atomic units of Asset.
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Resource is the absolute URL the payment is bound to.
	Resource string `json:"resource"`

	Description string `json:"description"`
	MimeType    string `json:"mimeType"`

	// PayTo is the checksummed recipient address.
	PayTo string `json:"payTo"`

	// MaxTimeoutSeconds is the validity period advertised for the payment authorization.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Asset is the checksummed token contract (EVM) or mint address (Solana).
	Asset string `json:"asset"`

	// Extra contains scheme-specific signing metadata (EIP-712 name/version, feePayer).
	Extra map[string]any `json:"extra,omitempty"`

	OutputSchema *OutputSchema `json:"outputSchema,omitempty"`
}

// PaymentRequirementsResponse is the JSON body of every 402 response.
type PaymentRequirementsResponse struct {
	X402Version int                  `json:"x402Version"`
	Error       string               `json:"error"`
	Accepts     []PaymentRequirement `json:"accepts"`
	Payer       string               `json:"payer,omitempty"`
}

// PaymentPayload is the proof submitted by a client in the X-PAYMENT header.
type PaymentPayload struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`

	// Payload holds the scheme-specific data. After decoding on the server it is an
	// EVMPayload or an SVMPayload; freshly unmarshalled JSON leaves it as map[string]any.
	Payload any `json:"payload"`
}

// EVMPayload represents an EVM payment with EIP-3009 authorization.
type EVMPayload struct {
	// Signature is the 0x-prefixed 65-byte ECDSA signature.
	Signature string `json:"signature"`

	Authorization EVMAuthorization `json:"authorization"`
}

// EVMAuthorization represents EIP-3009 transferWithAuthorization parameters.
type EVMAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`

	// Nonce is a unique 32-byte hex string to prevent replay attacks.
	Nonce string `json:"nonce"`
}

// SVMPayload represents a Solana payment with a partially signed transaction.
type SVMPayload struct {
	// Transaction is the base64-encoded transaction; the facilitator adds the fee payer signature.
	Transaction string `json:"transaction"`
}

// SettlementResponse is returned by the facilitator after settlement and echoed to the
// caller in the X-PAYMENT-RESPONSE header.
type SettlementResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network"`
	Payer       string `json:"payer"`
}

// TokenConfig represents configuration for a token a signer is willing to pay with.
type TokenConfig struct {
	Address  string
	Symbol   string
	Decimals int

	// Priority orders tokens within a signer. Lower numbers win.
	Priority int
}

// AmountToBigInt converts a decimal amount string to *big.Int in atomic units.
// For example, "1.5" with 6 decimals becomes 1500000. Amounts with more precision than
// decimals allows are rejected.
func AmountToBigInt(amount string, decimals int) (*big.Int, error) {
	value, ok := new(big.Rat).SetString(amount)
	if !ok {
		return nil, ErrInvalidAmount
	}
	value.Mul(value, new(big.Rat).SetInt(pow10(decimals)))
	if !value.IsInt() {
		return nil, ErrInvalidAmount
	}
	return new(big.Int).Set(value.Num()), nil
}

// BigIntToAmount converts a *big.Int in atomic units to a decimal string.
// For example, 1500000 with 6 decimals becomes "1.500000".
func BigIntToAmount(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	return new(big.Rat).SetFrac(value, pow10(decimals)).FloatString(decimals)
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
