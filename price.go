package x402

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// moneyPattern is a plain decimal: digits with an optional fraction.
var moneyPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// Price is what a route charges. It is either a Money amount in dollars, resolved against
// the network's USDC, or a TokenAmount naming the asset explicitly.
type Price interface {
	// resolve returns the atomic amount and the asset it is denominated in.
	resolve(chain ChainConfig) (*big.Int, Asset, error)
}

// Asset describes the token a TokenAmount is denominated in.
type Asset struct {
	Address  string
	Decimals int

	// EIP712 is the token's signing domain; required for EVM assets.
	EIP712 *EIP712Domain
}

// EIP712Domain holds the name/version pair clients sign EIP-3009 authorizations with.
type EIP712Domain struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Money is a dollar price such as "$0.01" or "0.01", settled in USDC.
type Money string

func (m Money) resolve(chain ChainConfig) (*big.Int, Asset, error) {
	amount, err := ParseMoney(string(m), int(chain.Decimals))
	if err != nil {
		return nil, Asset{}, err
	}
	asset := Asset{Address: chain.USDCAddress, Decimals: int(chain.Decimals)}
	if chain.EIP3009Name != "" {
		asset.EIP712 = &EIP712Domain{Name: chain.EIP3009Name, Version: chain.EIP3009Version}
	}
	return amount, asset, nil
}

// TokenAmount is a price in atomic units of an explicit asset.
type TokenAmount struct {
	Amount string
	Asset  Asset
}

func (t TokenAmount) resolve(chain ChainConfig) (*big.Int, Asset, error) {
	amount, ok := new(big.Int).SetString(t.Amount, 10)
	if !ok || amount.Sign() < 0 {
		return nil, Asset{}, fmt.Errorf("%w: %q is not a non-negative atomic amount", ErrInvalidAmount, t.Amount)
	}
	if chain.Type == NetworkTypeEVM && t.Asset.EIP712 == nil {
		return nil, Asset{}, fmt.Errorf("asset %s: EIP-712 domain is required on EVM networks", t.Asset.Address)
	}
	return amount, t.Asset, nil
}

// ParseMoney converts a dollar string into atomic units with the given decimals.
// A leading "$", surrounding spaces and thousands separators are accepted; sub-unit
// precision is rounded half up.
func ParseMoney(money string, decimals int) (*big.Int, error) {
	s := strings.TrimSpace(money)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return nil, fmt.Errorf("%w: empty price", ErrInvalidAmount)
	}

	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("%w: price %q is negative", ErrInvalidAmount, money)
	}
	if !moneyPattern.MatchString(s) {
		return nil, fmt.Errorf("%w: %q is not a valid price", ErrInvalidAmount, money)
	}

	value, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a valid price", ErrInvalidAmount, money)
	}

	value.Mul(value, new(big.Rat).SetInt(pow10(decimals)))

	// round half up: (2n + d) / 2d
	num := new(big.Int).Mul(value.Num(), big.NewInt(2))
	num.Add(num, value.Denom())
	den := new(big.Int).Mul(value.Denom(), big.NewInt(2))
	return num.Quo(num, den), nil
}
