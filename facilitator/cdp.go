package facilitator

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// CDPFacilitatorURL is the Coinbase Developer Platform hosted facilitator.
const CDPFacilitatorURL = "https://api.cdp.coinbase.com/platform/v2/x402"

// CDPAuth signs short-lived JWTs for the Coinbase Developer Platform facilitator.
// It is immutable after construction and safe for concurrent use.
type CDPAuth struct {
	keyName    string
	privateKey any
	ttl        time.Duration
	now        func() time.Time
}

type cdpClaims struct {
	*jwt.Claims
	// URI is "{METHOD} {host}{path}".
	URI string `json:"uri"`
}

// NewCDPAuth parses a PEM encoded EC (SEC1 or PKCS8) or Ed25519 key.
func NewCDPAuth(keyName, keySecret string) (*CDPAuth, error) {
	if keyName == "" {
		return nil, errors.New("cdp: key name must not be empty")
	}

	block, _ := pem.Decode([]byte(keySecret))
	if block == nil {
		return nil, errors.New("cdp: key secret is not PEM encoded")
	}

	var key any
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cdp: failed to parse private key: %w", err)
		}
	}
	if _, ok := key.(crypto.Signer); !ok {
		return nil, errors.New("cdp: unsupported private key type")
	}

	return &CDPAuth{keyName: keyName, privateKey: key, ttl: 2 * time.Minute, now: time.Now}, nil
}

// Token returns a bearer JWT bound to method, host and path.
func (a *CDPAuth) Token(method, host, path string) (string, error) {
	alg := jose.EdDSA
	if _, ok := a.privateKey.(*ecdsa.PrivateKey); ok {
		alg = jose.ES256
	}

	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: alg, Key: a.privateKey},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", a.keyName),
	)
	if err != nil {
		return "", fmt.Errorf("cdp: failed to create signer: %w", err)
	}

	now := a.now()
	claims := cdpClaims{
		Claims: &jwt.Claims{
			Subject:   a.keyName,
			Issuer:    "cdp",
			NotBefore: jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(now.Add(a.ttl)),
		},
		URI: fmt.Sprintf("%s %s%s", method, host, path),
	}

	token, err := jwt.Signed(sig).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("cdp: failed to serialize token: %w", err)
	}
	return token, nil
}

// Provider adapts the auth to a Client AuthorizationProvider.
func (a *CDPAuth) Provider() AuthorizationProvider {
	return func(req *http.Request) (string, error) {
		token, err := a.Token(req.Method, req.URL.Host, req.URL.Path)
		if err != nil {
			return "", err
		}
		return "Bearer " + token, nil
	}
}

// NewCDPClient returns a Client for the hosted CDP facilitator.
func NewCDPClient(keyName, keySecret string, opts ...Option) (*Client, error) {
	auth, err := NewCDPAuth(keyName, keySecret)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithAuthorizationProvider(auth.Provider())}, opts...)
	return NewClient(CDPFacilitatorURL, opts...), nil
}
