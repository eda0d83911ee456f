// Package validation checks x402 values that cross a trust boundary: route tables at
// startup, requirements received by the paying client and payloads before signing.
package validation

import (
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/x402cards/paygate"
)

var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// ValidateAmount validates that an amount string is a positive integer.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("%w: amount cannot be empty", x402.ErrInvalidAmount)
	}

	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("%w: invalid amount format: %s", x402.ErrInvalidAmount, amount)
	}
	if amt.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be greater than 0, got: %s", x402.ErrInvalidAmount, amount)
	}
	return nil
}

// ValidateAddress validates an address for the family of network.
func ValidateAddress(address string, network string) error {
	if address == "" {
		return fmt.Errorf("%w: address cannot be empty", x402.ErrInvalidAddress)
	}

	networkType, err := x402.ValidateNetwork(network)
	if err != nil {
		return fmt.Errorf("cannot validate address: %w", err)
	}
	_, err = x402.NormalizeAddress(networkType, address)
	return err
}

// ValidatePaymentRequirement checks a requirement offered in a 402 response.
func ValidatePaymentRequirement(req x402.PaymentRequirement) error {
	if err := ValidateAmount(req.MaxAmountRequired); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	if req.Network == "" {
		return fmt.Errorf("invalid requirement: network cannot be empty")
	}
	networkType, err := x402.ValidateNetwork(req.Network)
	if err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	if err := ValidateAddress(req.PayTo, req.Network); err != nil {
		return fmt.Errorf("invalid requirement: payTo %w", err)
	}
	if req.Asset == "" {
		return fmt.Errorf("invalid requirement: asset address cannot be empty")
	}
	if err := ValidateAddress(req.Asset, req.Network); err != nil {
		return fmt.Errorf("invalid requirement: asset %w", err)
	}

	switch req.Scheme {
	case x402.SchemeExact:
	case "":
		return fmt.Errorf("invalid requirement: scheme cannot be empty")
	default:
		return fmt.Errorf("invalid requirement: %w: %s", x402.ErrUnsupportedScheme, req.Scheme)
	}

	if req.MaxTimeoutSeconds < 0 {
		return fmt.Errorf("invalid requirement: timeout cannot be negative: %d", req.MaxTimeoutSeconds)
	}

	// EIP-3009 signing needs the token's EIP-712 domain.
	if networkType == x402.NetworkTypeEVM {
		for _, field := range []string{"name", "version"} {
			if v, ok := req.Extra[field].(string); !ok || v == "" {
				return fmt.Errorf("invalid requirement: EIP-712 %s missing from extra", field)
			}
		}
	}
	return nil
}

// ValidatePaymentPayload validates a payment payload envelope and its scheme payload.
func ValidatePaymentPayload(payment x402.PaymentPayload) error {
	if payment.X402Version != x402.X402Version {
		return fmt.Errorf("unsupported x402 version: %d", payment.X402Version)
	}
	if payment.Scheme == "" {
		return fmt.Errorf("scheme cannot be empty")
	}
	if payment.Network == "" {
		return fmt.Errorf("network cannot be empty")
	}
	if payment.Payload == nil {
		return fmt.Errorf("payload cannot be nil")
	}

	s, err := x402.LookupScheme(payment.Scheme, payment.Network)
	if err != nil {
		return err
	}
	if _, err := s.Decode(payment.Payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// ValidateRouteKey splits a "METHOD /path" key, upper-casing the method.
func ValidateRouteKey(key string) (method, path string, err error) {
	method, path, ok := strings.Cut(strings.TrimSpace(key), " ")
	if !ok {
		return "", "", &x402.ConfigError{Field: "routes", Err: fmt.Errorf("route key %q must be \"METHOD /path\"", key)}
	}
	method = strings.ToUpper(method)
	path = strings.TrimSpace(path)

	if !knownMethods[method] {
		return "", "", &x402.ConfigError{Field: "routes", Err: fmt.Errorf("route key %q: unknown method %q", key, method)}
	}
	if !strings.HasPrefix(path, "/") || strings.ContainsAny(path, " ?#") {
		return "", "", &x402.ConfigError{Field: "routes", Err: fmt.Errorf("route key %q: path must be absolute", key)}
	}
	return method, path, nil
}
