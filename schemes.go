package x402

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gagliardetto/solana-go"
)

// Scheme is one variant of the closed set of payment schemes the gateway accepts,
// keyed by scheme name and network family.
type Scheme interface {
	Name() string
	NetworkType() NetworkType

	// Decode validates the raw scheme payload and returns its typed form.
	Decode(raw any) (any, error)

	// Matches reports whether a decoded payment can pay the requirement beyond the
	// generic scheme/network equality.
	Matches(payment PaymentPayload, requirement PaymentRequirement) bool
}

var schemes = []Scheme{exactEVM{}, exactSVM{}}

// LookupScheme returns the variant handling scheme on network.
func LookupScheme(scheme, network string) (Scheme, error) {
	networkType, err := ValidateNetwork(network)
	if err != nil {
		return nil, err
	}
	for _, s := range schemes {
		if s.Name() == scheme && s.NetworkType() == networkType {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q on %s", ErrUnsupportedScheme, scheme, network)
}

// DecodePayment runs the scheme-specific decode of a payment in place and stamps it
// with the protocol version.
func DecodePayment(payment *PaymentPayload) error {
	s, err := LookupScheme(payment.Scheme, payment.Network)
	if err != nil {
		return err
	}
	typed, err := s.Decode(payment.Payload)
	if err != nil {
		return err
	}
	payment.Payload = typed
	payment.X402Version = X402Version
	return nil
}

// FindMatchingRequirement returns the first requirement the payment can pay.
func FindMatchingRequirement(payment PaymentPayload, requirements []PaymentRequirement) (*PaymentRequirement, error) {
	s, err := LookupScheme(payment.Scheme, payment.Network)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMatchingRequirement, err)
	}
	for i := range requirements {
		req := &requirements[i]
		if req.Scheme != payment.Scheme || req.Network != payment.Network {
			continue
		}
		if s.Matches(payment, *req) {
			return req, nil
		}
	}
	return nil, fmt.Errorf("%w: scheme=%s network=%s", ErrNoMatchingRequirement, payment.Scheme, payment.Network)
}

// remarshal converts loosely typed JSON (map[string]any) into dst.
func remarshal(raw any, dst any) error {
	if raw == nil {
		return fmt.Errorf("%w: payload is missing", ErrMalformedHeader)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	return nil
}

// exactEVM is the EIP-3009 transferWithAuthorization variant.
type exactEVM struct{}

func (exactEVM) Name() string             { return SchemeExact }
func (exactEVM) NetworkType() NetworkType { return NetworkTypeEVM }

func (exactEVM) Decode(raw any) (any, error) {
	var p EVMPayload
	switch v := raw.(type) {
	case EVMPayload:
		p = v
	case *EVMPayload:
		if v == nil {
			return nil, fmt.Errorf("%w: payload is missing", ErrMalformedHeader)
		}
		p = *v
	default:
		if err := remarshal(raw, &p); err != nil {
			return nil, err
		}
	}

	sig, err := hexutil.Decode(p.Signature)
	if err != nil || len(sig) != 65 {
		return nil, fmt.Errorf("%w: expected 65-byte hex signature", ErrInvalidSignature)
	}

	auth := p.Authorization
	if !common.IsHexAddress(auth.From) || !common.IsHexAddress(auth.To) {
		return nil, fmt.Errorf("%w: from/to must be hex addresses", ErrInvalidAuthorization)
	}
	for name, v := range map[string]string{"value": auth.Value, "validAfter": auth.ValidAfter, "validBefore": auth.ValidBefore} {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok || n.Sign() < 0 {
			return nil, fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidAuthorization, name)
		}
	}
	nonce, err := hexutil.Decode(auth.Nonce)
	if err != nil || len(nonce) != 32 {
		return nil, fmt.Errorf("%w: nonce must be 32 bytes of hex", ErrInvalidAuthorization)
	}
	return p, nil
}

func (exactEVM) Matches(payment PaymentPayload, requirement PaymentRequirement) bool {
	p, ok := payment.Payload.(EVMPayload)
	if !ok {
		return false
	}
	return common.HexToAddress(p.Authorization.To) == common.HexToAddress(requirement.PayTo)
}

// exactSVM is the partially signed SPL transfer variant.
type exactSVM struct{}

func (exactSVM) Name() string             { return SchemeExact }
func (exactSVM) NetworkType() NetworkType { return NetworkTypeSVM }

func (exactSVM) Decode(raw any) (any, error) {
	var p SVMPayload
	switch v := raw.(type) {
	case SVMPayload:
		p = v
	default:
		if err := remarshal(raw, &p); err != nil {
			return nil, err
		}
	}
	if p.Transaction == "" {
		return nil, fmt.Errorf("%w: transaction is missing", ErrMalformedHeader)
	}
	if _, err := solana.TransactionFromBase64(p.Transaction); err != nil {
		return nil, fmt.Errorf("%w: transaction does not decode: %v", ErrMalformedHeader, err)
	}
	return p, nil
}

// The recipient of an SVM transfer is the destination token account, which only the
// facilitator resolves, so there is nothing further to compare here.
func (exactSVM) Matches(payment PaymentPayload, _ PaymentRequirement) bool {
	_, ok := payment.Payload.(SVMPayload)
	return ok
}
