package evm

import (
	"crypto/ecdsa"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/x402cards/paygate"
)

// WithKeystore loads the private key from an encrypted V3 keystore file.
func WithKeystore(path, password string) SignerOption {
	return func(s *Signer) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: %v", x402.ErrInvalidKeystore, err)
		}
		key, err := keystore.DecryptKey(data, password)
		if err != nil {
			return fmt.Errorf("%w: %v", x402.ErrInvalidKeystore, err)
		}
		s.privateKey = key.PrivateKey
		return nil
	}
}

// WithMnemonic derives the key for m/44'/60'/0'/0/{accountIndex} from a BIP39
// mnemonic with an empty passphrase.
func WithMnemonic(mnemonic string, accountIndex uint32) SignerOption {
	return func(s *Signer) error {
		if !bip39.IsMnemonicValid(mnemonic) {
			return x402.ErrInvalidMnemonic
		}
		path := append(accounts.DerivationPath{}, accounts.DefaultBaseDerivationPath...)
		path[len(path)-1] = accountIndex

		key, err := deriveKey(bip39.NewSeed(mnemonic, ""), path)
		if err != nil {
			return fmt.Errorf("%w: %v", x402.ErrInvalidMnemonic, err)
		}
		s.privateKey = key
		return nil
	}
}

func deriveKey(seed []byte, path accounts.DerivationPath) (*ecdsa.PrivateKey, error) {
	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	for _, index := range path {
		if key, err = key.NewChildKey(index); err != nil {
			return nil, fmt.Errorf("deriving %s: %w", path, err)
		}
	}
	return crypto.ToECDSA(key.Key)
}
