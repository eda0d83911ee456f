package facilitatortest

import (
	"strings"

	"github.com/x402cards/paygate"
	"github.com/x402cards/paygate/encoding"
)

// EVMPayment returns a structurally valid exact-EVM payment paying requirement. The
// signature is not a real signature; the Fake does not check it.
func EVMPayment(requirement x402.PaymentRequirement) x402.PaymentPayload {
	return x402.PaymentPayload{
		X402Version: x402.X402Version,
		Scheme:      requirement.Scheme,
		Network:     requirement.Network,
		Payload: x402.EVMPayload{
			Signature: "0x" + strings.Repeat("ab", 65),
			Authorization: x402.EVMAuthorization{
				From:        Payer,
				To:          requirement.PayTo,
				Value:       requirement.MaxAmountRequired,
				ValidAfter:  "0",
				ValidBefore: "99999999999",
				Nonce:       "0x" + strings.Repeat("01", 32),
			},
		},
	}
}

// Header encodes payment for the X-PAYMENT header.
func Header(payment x402.PaymentPayload) string {
	h, err := encoding.EncodePayment(payment)
	if err != nil {
		panic(err)
	}
	return h
}
