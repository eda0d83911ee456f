// Package evm signs x402 "exact" payments on EVM chains with EIP-3009
// transferWithAuthorization.
package evm

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/x402cards/paygate"
)

// Signer implements x402.Signer for EVM-compatible chains.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chain      x402.ChainConfig
	network    string
	tokens     []x402.TokenConfig
	priority   int
	maxAmount  *big.Int
}

// SignerOption configures a Signer.
type SignerOption func(*Signer) error

// NewSigner creates an EVM signer. A key option and WithNetwork are required; when
// no token is configured the chain's USDC is used.
func NewSigner(opts ...SignerOption) (*Signer, error) {
	s := &Signer{}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.privateKey == nil {
		return nil, x402.ErrInvalidKey
	}
	if s.network == "" {
		return nil, x402.ErrInvalidNetwork
	}
	chain, err := x402.LookupChain(s.network)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidNetwork, err)
	}
	if chain.Type != x402.NetworkTypeEVM {
		return nil, fmt.Errorf("%w: %s is not an EVM chain", x402.ErrInvalidNetwork, s.network)
	}
	s.chain = chain

	if len(s.tokens) == 0 {
		s.tokens = []x402.TokenConfig{x402.NewUSDCTokenConfig(chain, 0)}
	}
	s.address = crypto.PubkeyToAddress(s.privateKey.PublicKey)
	return s, nil
}

// WithPrivateKey sets the private key from a hex string, with or without 0x.
func WithPrivateKey(hexKey string) SignerOption {
	return func(s *Signer) error {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return x402.ErrInvalidKey
		}
		s.privateKey = key
		return nil
	}
}

// WithNetwork sets the x402 network identifier, e.g. "base-sepolia".
func WithNetwork(network string) SignerOption {
	return func(s *Signer) error {
		s.network = network
		return nil
	}
}

// WithToken adds a token the signer is willing to pay with.
func WithToken(address, symbol string, decimals int) SignerOption {
	return WithTokenPriority(address, symbol, decimals, 0)
}

func WithTokenPriority(address, symbol string, decimals, priority int) SignerOption {
	return func(s *Signer) error {
		if !common.IsHexAddress(address) {
			return fmt.Errorf("%w: token %q", x402.ErrInvalidAddress, address)
		}
		s.tokens = append(s.tokens, x402.TokenConfig{
			Address:  address,
			Symbol:   symbol,
			Decimals: decimals,
			Priority: priority,
		})
		return nil
	}
}

func WithPriority(priority int) SignerOption {
	return func(s *Signer) error {
		s.priority = priority
		return nil
	}
}

// WithMaxAmountPerCall caps a single payment, in atomic units.
func WithMaxAmountPerCall(amount string) SignerOption {
	return func(s *Signer) error {
		maxAmount, ok := new(big.Int).SetString(amount, 10)
		if !ok || maxAmount.Sign() < 0 {
			return x402.ErrInvalidAmount
		}
		s.maxAmount = maxAmount
		return nil
	}
}

func (s *Signer) Network() string { return s.network }

func (s *Signer) Scheme() string { return x402.SchemeExact }

// CanSign reports whether the requirement is on this signer's network, in a
// configured token, and carries the EIP-712 domain needed to sign it.
func (s *Signer) CanSign(req *x402.PaymentRequirement) bool {
	if req.Network != s.network || req.Scheme != x402.SchemeExact {
		return false
	}
	if _, ok := s.token(req.Asset); !ok {
		return false
	}
	_, err := s.domain(req)
	return err == nil
}

// Sign creates a signed "exact" payment for req.
func (s *Signer) Sign(req *x402.PaymentRequirement) (*x402.PaymentPayload, error) {
	if !s.CanSign(req) {
		return nil, x402.ErrNoValidSigner
	}

	amount, ok := new(big.Int).SetString(req.MaxAmountRequired, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, x402.ErrInvalidAmount
	}
	if s.maxAmount != nil && amount.Cmp(s.maxAmount) > 0 {
		return nil, x402.ErrAmountExceeded
	}
	if !common.IsHexAddress(req.PayTo) {
		return nil, fmt.Errorf("%w: payTo %q", x402.ErrInvalidAddress, req.PayTo)
	}

	domain, err := s.domain(req)
	if err != nil {
		return nil, err
	}
	auth, err := NewAuthorization(s.address, common.HexToAddress(req.PayTo), amount, req.MaxTimeoutSeconds)
	if err != nil {
		return nil, err
	}
	signature, err := SignAuthorization(s.privateKey, domain, auth)
	if err != nil {
		return nil, err
	}

	return &x402.PaymentPayload{
		X402Version: 1,
		Scheme:      x402.SchemeExact,
		Network:     s.network,
		Payload: x402.EVMPayload{
			Signature: signature,
			Authorization: x402.EVMAuthorization{
				From:        auth.From.Hex(),
				To:          auth.To.Hex(),
				Value:       auth.Value.String(),
				ValidAfter:  auth.ValidAfter.String(),
				ValidBefore: auth.ValidBefore.String(),
				Nonce:       auth.Nonce.Hex(),
			},
		},
	}, nil
}

func (s *Signer) GetPriority() int { return s.priority }

func (s *Signer) GetTokens() []x402.TokenConfig { return s.tokens }

func (s *Signer) GetMaxAmount() *big.Int { return s.maxAmount }

// Address returns the signer's account address.
func (s *Signer) Address() common.Address { return s.address }

func (s *Signer) token(asset string) (x402.TokenConfig, bool) {
	for _, t := range s.tokens {
		if strings.EqualFold(t.Address, asset) {
			return t, true
		}
	}
	return x402.TokenConfig{}, false
}

// domain reads the token's EIP-712 name and version from the requirement's extra
// data. The chain's USDC falls back to the known domain when extra is absent.
func (s *Signer) domain(req *x402.PaymentRequirement) (Domain, error) {
	name, _ := req.Extra["name"].(string)
	version, _ := req.Extra["version"].(string)
	if (name == "" || version == "") && strings.EqualFold(req.Asset, s.chain.USDCAddress) {
		name, version = s.chain.EIP3009Name, s.chain.EIP3009Version
	}
	if name == "" || version == "" {
		return Domain{}, fmt.Errorf("%w: missing EIP-712 name or version for %s", x402.ErrInvalidRequirements, req.Asset)
	}
	return Domain{
		Name:              name,
		Version:           version,
		ChainID:           s.chain.ChainID,
		VerifyingContract: common.HexToAddress(req.Asset),
	}, nil
}
