package x402

import (
	"math/big"
	"sort"
	"strings"
)

// PaymentSelector picks a requirement and a signer and produces a signed payment.
type PaymentSelector interface {
	SelectAndSign(requirements []PaymentRequirement, signers []Signer) (*PaymentPayload, *PaymentRequirement, error)
}

// DefaultPaymentSelector implements the standard payment selection algorithm.
// Candidates are ordered by:
// 1. Signer priority (lower number = higher priority)
// 2. Token priority within the signer
// 3. Order of the requirements in the 402 response, then signer configuration order
type DefaultPaymentSelector struct{}

// NewDefaultPaymentSelector creates a new DefaultPaymentSelector.
func NewDefaultPaymentSelector() *DefaultPaymentSelector {
	return &DefaultPaymentSelector{}
}

// SelectAndSign implements PaymentSelector.
func (s *DefaultPaymentSelector) SelectAndSign(requirements []PaymentRequirement, signers []Signer) (*PaymentPayload, *PaymentRequirement, error) {
	if len(signers) == 0 {
		return nil, nil, NewPaymentError(ErrCodeNoValidSigner, "no signers configured", ErrNoValidSigner)
	}
	if len(requirements) == 0 {
		return nil, nil, NewPaymentError(ErrCodeInvalidRequirements, "no payment requirements offered", ErrInvalidRequirements)
	}

	var candidates []signerCandidate
	for ri := range requirements {
		req := &requirements[ri]

		requiredAmount, ok := new(big.Int).SetString(req.MaxAmountRequired, 10)
		if !ok {
			return nil, nil, NewPaymentError(ErrCodeInvalidRequirements, "invalid amount in requirements", ErrInvalidRequirements).
				WithDetails("amount", req.MaxAmountRequired)
		}

		for _, signer := range signers {
			if !signer.CanSign(req) {
				continue
			}
			if maxAmount := signer.GetMaxAmount(); maxAmount != nil && requiredAmount.Cmp(maxAmount) > 0 {
				continue
			}

			tokenPriority := 0
			for _, token := range signer.GetTokens() {
				if strings.EqualFold(token.Address, req.Asset) {
					tokenPriority = token.Priority
					break
				}
			}

			candidates = append(candidates, signerCandidate{
				signer:         signer,
				requirement:    req,
				signerPriority: signer.GetPriority(),
				tokenPriority:  tokenPriority,
			})
		}
	}

	if len(candidates) == 0 {
		first := requirements[0]
		return nil, nil, NewPaymentError(ErrCodeNoValidSigner, "no signer can satisfy requirements", ErrNoValidSigner).
			WithDetails("network", first.Network).
			WithDetails("asset", first.Asset).
			WithDetails("amount", first.MaxAmountRequired)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].signerPriority != candidates[j].signerPriority {
			return candidates[i].signerPriority < candidates[j].signerPriority
		}
		return candidates[i].tokenPriority < candidates[j].tokenPriority
	})

	selected := candidates[0]
	payment, err := selected.signer.Sign(selected.requirement)
	if err != nil {
		return nil, nil, NewPaymentError(ErrCodeSigningFailed, "failed to sign payment", err)
	}
	return payment, selected.requirement, nil
}

type signerCandidate struct {
	signer         Signer
	requirement    *PaymentRequirement
	signerPriority int
	tokenPriority  int
}
