package evm

import (
	"bytes"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/x402cards/paygate"
)

func fixedAuthorization() *Authorization {
	return &Authorization{
		From:        common.HexToAddress(testAddress),
		To:          common.HexToAddress(testPayTo),
		Value:       big.NewInt(10000),
		ValidAfter:  big.NewInt(1700000000),
		ValidBefore: big.NewInt(1700000060),
		Nonce:       common.HexToHash("0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"),
	}
}

func usdcDomain() Domain {
	return Domain{
		Name:              "USDC",
		Version:           "2",
		ChainID:           x402.BaseSepolia.ChainID,
		VerifyingContract: common.HexToAddress(x402.BaseSepolia.USDCAddress),
	}
}

func TestNewAuthorization(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	auth, err := NewAuthorization(common.HexToAddress(testAddress), common.HexToAddress(testPayTo), big.NewInt(10000), 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auth.ValidAfter.Int64() != 1700000000-10 {
		t.Errorf("expected validAfter backdated by 10s, got %s", auth.ValidAfter)
	}
	if auth.ValidBefore.Int64() != 1700000060 {
		t.Errorf("expected validBefore now+60, got %s", auth.ValidBefore)
	}
	if auth.Nonce == (common.Hash{}) {
		t.Error("expected a non-zero nonce")
	}
}

func TestGenerateNonce_Unique(t *testing.T) {
	seen := make(map[common.Hash]bool)
	for i := 0; i < 100; i++ {
		nonce, err := generateNonce()
		if err != nil {
			t.Fatalf("failed to generate nonce: %v", err)
		}
		if seen[nonce] {
			t.Fatal("duplicate nonce generated")
		}
		seen[nonce] = true
	}
}

func TestDigest_DependsOnDomain(t *testing.T) {
	auth := fixedAuthorization()
	a, err := Digest(usdcDomain(), auth)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Digest(usdcDomain(), auth)
	if !bytes.Equal(a, b) {
		t.Error("digest must be deterministic")
	}
	if len(a) != 32 {
		t.Errorf("expected 32-byte digest, got %d", len(a))
	}

	mainnet := usdcDomain()
	mainnet.Name = "USD Coin"
	c, _ := Digest(mainnet, auth)
	if bytes.Equal(a, c) {
		t.Error("digest must change with the domain name")
	}

	other := usdcDomain()
	other.ChainID = big.NewInt(8453)
	d, _ := Digest(other, auth)
	if bytes.Equal(a, d) {
		t.Error("digest must change with the chain id")
	}
}

func TestSignAuthorization_RoundTrip(t *testing.T) {
	key, err := crypto.HexToECDSA(testPrivateKeyHex)
	if err != nil {
		t.Fatal(err)
	}
	auth := fixedAuthorization()

	sig, err := SignAuthorization(key, usdcDomain(), auth)
	if err != nil {
		t.Fatalf("SignAuthorization failed: %v", err)
	}
	if len(sig) != 2+2*crypto.SignatureLength {
		t.Fatalf("expected 65-byte hex signature, got %q", sig)
	}
	if v := sig[len(sig)-2:]; v != "1b" && v != "1c" {
		t.Errorf("expected recovery id 27 or 28, got 0x%s", v)
	}

	got, err := RecoverSigner(usdcDomain(), auth, sig)
	if err != nil {
		t.Fatal(err)
	}
	if got.Hex() != testAddress {
		t.Errorf("recovered %s, want %s", got.Hex(), testAddress)
	}

	tampered := *auth
	tampered.Value = big.NewInt(1)
	if got, _ := RecoverSigner(usdcDomain(), &tampered, sig); got.Hex() == testAddress {
		t.Error("signature must not verify for a different value")
	}
}

func TestRecoverSigner_RejectsMalformed(t *testing.T) {
	for _, sig := range []string{"", "0x1234", "not hex"} {
		if _, err := RecoverSigner(usdcDomain(), fixedAuthorization(), sig); !errors.Is(err, x402.ErrInvalidSignature) {
			t.Errorf("signature %q: expected ErrInvalidSignature, got %v", sig, err)
		}
	}
}
