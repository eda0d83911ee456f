package x402

import (
	"errors"
	"fmt"
)

// Standard x402 error definitions

var (
	// ErrPaymentRequired indicates that payment is required to access the resource.
	ErrPaymentRequired = errors.New("payment required")

	// ErrInvalidConfiguration indicates a route's price, network or address cannot be resolved.
	ErrInvalidConfiguration = errors.New("invalid payment configuration")

	// ErrMalformedHeader indicates that the X-PAYMENT header is malformed.
	ErrMalformedHeader = errors.New("malformed payment header")

	// ErrUnsupportedScheme indicates an unsupported payment scheme.
	ErrUnsupportedScheme = errors.New("unsupported payment scheme")

	// ErrUnsupportedNetwork indicates an unsupported blockchain network.
	ErrUnsupportedNetwork = errors.New("unsupported network")

	// ErrInvalidAddress indicates an address that is malformed for its network.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidAmount indicates a malformed or negative amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidSignature indicates an invalid cryptographic signature.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInvalidAuthorization indicates invalid payment authorization data.
	ErrInvalidAuthorization = errors.New("invalid authorization")

	// ErrNoMatchingRequirement indicates the proof matches none of the accepted requirements.
	ErrNoMatchingRequirement = errors.New("no matching payment requirement")

	// ErrFacilitatorUnavailable indicates the facilitator service is unavailable.
	ErrFacilitatorUnavailable = errors.New("facilitator unavailable")

	// ErrVerificationFailed indicates payment verification failed.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrSettlementFailed indicates on-chain settlement failed.
	ErrSettlementFailed = errors.New("settlement failed")
)

// Client-side signer errors.
var (
	ErrInvalidKey          = errors.New("invalid private key")
	ErrInvalidKeystore     = errors.New("invalid keystore")
	ErrInvalidMnemonic     = errors.New("invalid mnemonic")
	ErrInvalidNetwork      = errors.New("invalid network")
	ErrNoTokens            = errors.New("no tokens configured")
	ErrNoValidSigner       = errors.New("no signer can satisfy requirements")
	ErrAmountExceeded      = errors.New("amount exceeds per-call limit")
	ErrInvalidRequirements = errors.New("invalid payment requirements")
)

// FailureKind classifies why the gateway refused to serve a request.
type FailureKind string

const (
	// FailureConfiguration is a server misconfiguration (500, never retried).
	FailureConfiguration FailureKind = "configuration"
	// FailureProofMissing means no X-PAYMENT header was sent.
	FailureProofMissing FailureKind = "proof_missing"
	// FailureProofMalformed covers undecodable proofs and unsupported schemes.
	FailureProofMalformed FailureKind = "proof_malformed"
	// FailureNoMatchingRequirement means the proof targets another network, scheme or recipient.
	FailureNoMatchingRequirement FailureKind = "no_matching_requirement"
	// FailureVerification means the facilitator rejected the proof or could not be reached.
	FailureVerification FailureKind = "verification_failed"
	// FailureSettlement means the handler ran but the transfer did not complete.
	FailureSettlement FailureKind = "settlement_failed"
)

// ConfigError reports a route configuration that cannot be turned into a requirement.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

// Unwrap lets errors.Is match both ErrInvalidConfiguration and the underlying cause.
func (e *ConfigError) Unwrap() []error {
	return []error{ErrInvalidConfiguration, e.Err}
}

func configErr(field string, err error) error {
	return &ConfigError{Field: field, Err: err}
}

// ErrorCode identifies client-side payment failures.
type ErrorCode string

const (
	ErrCodeNoValidSigner       ErrorCode = "NO_VALID_SIGNER"
	ErrCodeInvalidRequirements ErrorCode = "INVALID_REQUIREMENTS"
	ErrCodeSigningFailed       ErrorCode = "SIGNING_FAILED"
	ErrCodeAmountExceeded      ErrorCode = "AMOUNT_EXCEEDED"
)

// PaymentError is a structured client-side error with optional details.
type PaymentError struct {
	Code    ErrorCode
	Message string
	Err     error
	Details map[string]any
}

// NewPaymentError creates a PaymentError wrapping err.
func NewPaymentError(code ErrorCode, message string, err error) *PaymentError {
	return &PaymentError{Code: code, Message: message, Err: err}
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a key/value pair and returns the same error for chaining.
func (e *PaymentError) WithDetails(key string, value any) *PaymentError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}
