package x402

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigError(t *testing.T) {
	err := configErr("price", ErrInvalidAmount)

	if got, want := err.Error(), "price: invalid amount"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Error("config error should match ErrInvalidConfiguration")
	}
	if !errors.Is(err, ErrInvalidAmount) {
		t.Error("config error should match its cause")
	}

	var cfgErr *ConfigError
	if !errors.As(fmt.Errorf("route POST /x: %w", err), &cfgErr) || cfgErr.Field != "price" {
		t.Errorf("errors.As through wrapping = %+v", cfgErr)
	}
}

func TestPaymentError(t *testing.T) {
	cause := errors.New("hardware wallet unplugged")

	tests := []struct {
		name string
		err  *PaymentError
		want string
	}{
		{
			name: "with cause",
			err:  NewPaymentError(ErrCodeSigningFailed, "failed to sign payment", cause),
			want: "SIGNING_FAILED: failed to sign payment: hardware wallet unplugged",
		},
		{
			name: "without cause",
			err:  NewPaymentError(ErrCodeAmountExceeded, "too expensive", nil),
			want: "AMOUNT_EXCEEDED: too expensive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}

	if err := NewPaymentError(ErrCodeSigningFailed, "x", cause); !errors.Is(err, cause) {
		t.Error("PaymentError should unwrap to its cause")
	}
}

func TestPaymentErrorWithDetails(t *testing.T) {
	err := NewPaymentError(ErrCodeNoValidSigner, "no signer", ErrNoValidSigner).
		WithDetails("network", "base").
		WithDetails("amount", "10000")

	if len(err.Details) != 2 || err.Details["network"] != "base" || err.Details["amount"] != "10000" {
		t.Errorf("details = %v", err.Details)
	}

	var target *PaymentError
	if !errors.As(fmt.Errorf("paying: %w", err), &target) || target.Code != ErrCodeNoValidSigner {
		t.Errorf("errors.As = %+v", target)
	}
}
