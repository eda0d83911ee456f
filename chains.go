// Package x402 implements the server side of the x402 pay-per-request protocol: payment
// requirement construction, proof decoding for the supported scheme variants and the
// shared wire types. HTTP gating lives in the http subpackage.
package x402

import (
	"fmt"
	"math/big"
)

// NetworkType represents the blockchain virtual machine type.
type NetworkType int

const (
	// NetworkTypeUnknown represents an unrecognized network.
	NetworkTypeUnknown NetworkType = iota
	// NetworkTypeEVM represents Ethereum Virtual Machine chains.
	NetworkTypeEVM
	// NetworkTypeSVM represents Solana Virtual Machine chains.
	NetworkTypeSVM
)

func (t NetworkType) String() string {
	switch t {
	case NetworkTypeEVM:
		return "evm"
	case NetworkTypeSVM:
		return "svm"
	default:
		return "unknown"
	}
}

// ChainConfig contains chain-specific configuration for the default settlement asset (USDC).
type ChainConfig struct {
	// NetworkID is the x402 protocol network identifier (e.g., "base", "solana").
	NetworkID string

	Type NetworkType

	// ChainID is the EIP-155 chain id. Nil for non-EVM chains.
	ChainID *big.Int

	// USDCAddress is the official Circle USDC contract address or mint address.
	USDCAddress string

	Decimals uint8

	// EIP3009Name and EIP3009Version are the token's EIP-712 domain parameters
	// (empty for non-EVM chains).
	EIP3009Name    string
	EIP3009Version string
}

// Mainnet chain configurations
var (
	BaseMainnet = ChainConfig{
		NetworkID:      "base",
		Type:           NetworkTypeEVM,
		ChainID:        big.NewInt(8453),
		USDCAddress:    "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Decimals:       6,
		EIP3009Name:    "USD Coin",
		EIP3009Version: "2",
	}

	PolygonMainnet = ChainConfig{
		NetworkID:      "polygon",
		Type:           NetworkTypeEVM,
		ChainID:        big.NewInt(137),
		USDCAddress:    "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		Decimals:       6,
		EIP3009Name:    "USD Coin",
		EIP3009Version: "2",
	}

	AvalancheMainnet = ChainConfig{
		NetworkID:      "avalanche",
		Type:           NetworkTypeEVM,
		ChainID:        big.NewInt(43114),
		USDCAddress:    "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
		Decimals:       6,
		EIP3009Name:    "USD Coin",
		EIP3009Version: "2",
	}

	SolanaMainnet = ChainConfig{
		NetworkID:   "solana",
		Type:        NetworkTypeSVM,
		USDCAddress: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Decimals:    6,
	}
)

// Testnet chain configurations
var (
	// BaseSepolia USDC reports "USDC" as its EIP-712 name, unlike mainnet.
	BaseSepolia = ChainConfig{
		NetworkID:      "base-sepolia",
		Type:           NetworkTypeEVM,
		ChainID:        big.NewInt(84532),
		USDCAddress:    "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Decimals:       6,
		EIP3009Name:    "USDC",
		EIP3009Version: "2",
	}

	PolygonAmoy = ChainConfig{
		NetworkID:      "polygon-amoy",
		Type:           NetworkTypeEVM,
		ChainID:        big.NewInt(80002),
		USDCAddress:    "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582",
		Decimals:       6,
		EIP3009Name:    "USDC",
		EIP3009Version: "2",
	}

	AvalancheFuji = ChainConfig{
		NetworkID:      "avalanche-fuji",
		Type:           NetworkTypeEVM,
		ChainID:        big.NewInt(43113),
		USDCAddress:    "0x5425890298aed601595a70AB815c96711a31Bc65",
		Decimals:       6,
		EIP3009Name:    "USD Coin",
		EIP3009Version: "2",
	}

	SolanaDevnet = ChainConfig{
		NetworkID:   "solana-devnet",
		Type:        NetworkTypeSVM,
		USDCAddress: "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
		Decimals:    6,
	}
)

var chains = map[string]ChainConfig{
	BaseMainnet.NetworkID:      BaseMainnet,
	PolygonMainnet.NetworkID:   PolygonMainnet,
	AvalancheMainnet.NetworkID: AvalancheMainnet,
	SolanaMainnet.NetworkID:    SolanaMainnet,
	BaseSepolia.NetworkID:      BaseSepolia,
	PolygonAmoy.NetworkID:      PolygonAmoy,
	AvalancheFuji.NetworkID:    AvalancheFuji,
	SolanaDevnet.NetworkID:     SolanaDevnet,
}

// LookupChain returns the chain configuration for a network identifier.
func LookupChain(networkID string) (ChainConfig, error) {
	if networkID == "" {
		return ChainConfig{}, fmt.Errorf("%w: network cannot be empty", ErrUnsupportedNetwork)
	}
	chain, ok := chains[networkID]
	if !ok {
		return ChainConfig{}, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, networkID)
	}
	return chain, nil
}

// ValidateNetwork validates a network identifier and returns its type.
func ValidateNetwork(networkID string) (NetworkType, error) {
	chain, err := LookupChain(networkID)
	if err != nil {
		return NetworkTypeUnknown, err
	}
	return chain.Type, nil
}

// NewUSDCTokenConfig creates a TokenConfig for USDC on the given chain with the specified priority.
func NewUSDCTokenConfig(chain ChainConfig, priority int) TokenConfig {
	return TokenConfig{
		Address:  chain.USDCAddress,
		Symbol:   "USDC",
		Decimals: int(chain.Decimals),
		Priority: priority,
	}
}
