package x402

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
)

// NormalizeAddress returns the canonical form of an address on the given network type:
// the EIP-55 checksum for EVM and base58 for Solana.
//
// EVM input in a single case is accepted as-is; mixed-case input must already carry a
// valid checksum, otherwise it is most likely a typo.
func NormalizeAddress(networkType NetworkType, address string) (string, error) {
	switch networkType {
	case NetworkTypeEVM:
		return normalizeEVMAddress(address)
	case NetworkTypeSVM:
		pk, err := solana.PublicKeyFromBase58(address)
		if err != nil {
			return "", fmt.Errorf("%w: %q is not a base58 public key: %v", ErrInvalidAddress, address, err)
		}
		return pk.String(), nil
	default:
		return "", fmt.Errorf("%w: unknown network type for %q", ErrUnsupportedNetwork, address)
	}
}

func normalizeEVMAddress(address string) (string, error) {
	if !strings.HasPrefix(address, "0x") || !common.IsHexAddress(address) {
		return "", fmt.Errorf("%w: %q is not a 0x-prefixed 20-byte hex address", ErrInvalidAddress, address)
	}
	checksummed := common.HexToAddress(address).Hex()

	body := address[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && address != checksummed {
		return "", fmt.Errorf("%w: %q has an invalid checksum", ErrInvalidAddress, address)
	}
	return checksummed, nil
}
