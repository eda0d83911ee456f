// Package encoding provides the base64 JSON codec used for x402 headers.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/x402cards/paygate"
)

// EncodePayment converts a PaymentPayload to the X-PAYMENT header value.
func EncodePayment(payment x402.PaymentPayload) (string, error) {
	return encode(payment, "payment")
}

// DecodePayment parses an X-PAYMENT header value. It only checks the envelope; the
// scheme-specific payload is validated by x402.DecodePayment.
func DecodePayment(encoded string) (x402.PaymentPayload, error) {
	var payment x402.PaymentPayload
	if err := decode(encoded, &payment); err != nil {
		return payment, fmt.Errorf("%w: %v", x402.ErrMalformedHeader, err)
	}
	if payment.Scheme == "" || payment.Network == "" {
		return payment, fmt.Errorf("%w: scheme and network are required", x402.ErrMalformedHeader)
	}
	return payment, nil
}

// EncodeSettlement converts a SettlementResponse to the X-PAYMENT-RESPONSE header value.
func EncodeSettlement(settlement x402.SettlementResponse) (string, error) {
	return encode(settlement, "settlement")
}

// DecodeSettlement parses an X-PAYMENT-RESPONSE header value.
func DecodeSettlement(encoded string) (x402.SettlementResponse, error) {
	var settlement x402.SettlementResponse
	err := decode(encoded, &settlement)
	return settlement, err
}

func encode(v any, what string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", what, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// decode accepts standard and URL-safe alphabets, padded or not, since browser
// clients are inconsistent about which one they emit.
func decode(encoded string, dst any) error {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return fmt.Errorf("empty value")
	}

	var (
		data []byte
		err  error
	)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err = enc.DecodeString(encoded); err == nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}
