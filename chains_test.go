package x402

import (
	"errors"
	"strings"
	"testing"
)

func TestLookupChain(t *testing.T) {
	tests := []struct {
		network  string
		wantType NetworkType
		chainID  int64
	}{
		{"base", NetworkTypeEVM, 8453},
		{"base-sepolia", NetworkTypeEVM, 84532},
		{"polygon", NetworkTypeEVM, 137},
		{"polygon-amoy", NetworkTypeEVM, 80002},
		{"avalanche", NetworkTypeEVM, 43114},
		{"avalanche-fuji", NetworkTypeEVM, 43113},
		{"solana", NetworkTypeSVM, 0},
		{"solana-devnet", NetworkTypeSVM, 0},
	}

	for _, tt := range tests {
		t.Run(tt.network, func(t *testing.T) {
			chain, err := LookupChain(tt.network)
			if err != nil {
				t.Fatalf("LookupChain(%q) error = %v", tt.network, err)
			}
			if chain.NetworkID != tt.network || chain.Type != tt.wantType {
				t.Errorf("chain = %s/%s, want %s/%s", chain.NetworkID, chain.Type, tt.network, tt.wantType)
			}
			if chain.Decimals != 6 || chain.USDCAddress == "" {
				t.Errorf("USDC config = %s (%d decimals)", chain.USDCAddress, chain.Decimals)
			}
			switch tt.wantType {
			case NetworkTypeEVM:
				if chain.ChainID == nil || chain.ChainID.Int64() != tt.chainID {
					t.Errorf("chain id = %v, want %d", chain.ChainID, tt.chainID)
				}
				if chain.EIP3009Name == "" || chain.EIP3009Version != "2" {
					t.Errorf("EIP-712 domain = %q/%q", chain.EIP3009Name, chain.EIP3009Version)
				}
			case NetworkTypeSVM:
				if chain.ChainID != nil || chain.EIP3009Name != "" {
					t.Errorf("solana chain carries EVM fields: %+v", chain)
				}
			}
		})
	}
}

func TestLookupChainUnknown(t *testing.T) {
	for _, network := range []string{"", "ethereum", "Base", "base-mainnet"} {
		_, err := LookupChain(network)
		if !errors.Is(err, ErrUnsupportedNetwork) {
			t.Errorf("LookupChain(%q) error = %v, want ErrUnsupportedNetwork", network, err)
		}
	}

	_, err := LookupChain("")
	if err == nil || !strings.Contains(err.Error(), "network cannot be empty") {
		t.Errorf("empty network error = %v", err)
	}
}

func TestBaseSepoliaSigningDomain(t *testing.T) {
	if BaseSepolia.EIP3009Name != "USDC" {
		t.Errorf("base-sepolia EIP-712 name = %q, want USDC", BaseSepolia.EIP3009Name)
	}
	if BaseMainnet.EIP3009Name != "USD Coin" {
		t.Errorf("base EIP-712 name = %q, want USD Coin", BaseMainnet.EIP3009Name)
	}
}

func TestValidateNetwork(t *testing.T) {
	if typ, err := ValidateNetwork("base"); err != nil || typ != NetworkTypeEVM {
		t.Errorf("ValidateNetwork(base) = %v, %v", typ, err)
	}
	if typ, err := ValidateNetwork("solana-devnet"); err != nil || typ != NetworkTypeSVM {
		t.Errorf("ValidateNetwork(solana-devnet) = %v, %v", typ, err)
	}
	if typ, err := ValidateNetwork("nowhere"); err == nil || typ != NetworkTypeUnknown {
		t.Errorf("ValidateNetwork(nowhere) = %v, %v", typ, err)
	}
}

func TestNetworkTypeString(t *testing.T) {
	for typ, want := range map[NetworkType]string{
		NetworkTypeEVM:     "evm",
		NetworkTypeSVM:     "svm",
		NetworkTypeUnknown: "unknown",
		NetworkType(42):    "unknown",
	} {
		if got := typ.String(); got != want {
			t.Errorf("NetworkType(%d).String() = %q, want %q", int(typ), got, want)
		}
	}
}

func TestNewUSDCTokenConfig(t *testing.T) {
	token := NewUSDCTokenConfig(PolygonAmoy, 3)
	want := TokenConfig{Address: PolygonAmoy.USDCAddress, Symbol: "USDC", Decimals: 6, Priority: 3}
	if token != want {
		t.Errorf("token = %+v, want %+v", token, want)
	}
}
