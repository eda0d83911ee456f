package x402

import (
	"fmt"
	"maps"
	"strings"
)

// Defaults applied by BuildRequirement.
const (
	DefaultMaxTimeoutSeconds = 300
	DefaultMimeType          = "application/json"
)

// RouteConfig is the static payment configuration of one paid route.
type RouteConfig struct {
	// Price is required: Money("$0.01") or a TokenAmount.
	Price Price

	// Network is required, e.g. "base-sepolia".
	Network string

	// PayTo is the recipient address. Required.
	PayTo string

	Description string

	// MimeType defaults to "application/json".
	MimeType string

	// MaxTimeoutSeconds defaults to 300.
	MaxTimeoutSeconds int

	// Resource overrides the URL the requirement is bound to. By default the live
	// request URL is used.
	Resource string

	// Discoverable controls the outputSchema discoverable flag. Defaults to true.
	Discoverable *bool

	// Extra is merged over the asset's signing metadata (e.g. a Solana feePayer).
	Extra map[string]any

	// ErrorMessages overrides the default message of individual failure branches.
	ErrorMessages ErrorMessages
}

// ErrorMessages holds per-branch overrides for 402 error messages. Empty fields keep
// the defaults.
type ErrorMessages struct {
	PaymentRequired        string
	InvalidPayment         string
	NoMatchingRequirements string
	VerificationFailed     string
	SettlementFailed       string
}

// RequestInfo is the part of the inbound request a requirement depends on.
type RequestInfo struct {
	Method string
	Scheme string
	Host   string
	Path   string
}

// URL returns scheme://host/path.
func (ri RequestInfo) URL() string {
	scheme := ri.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + ri.Host + ri.Path
}

// BuildRequirement derives the payment requirement for one request from a route's
// configuration. It performs no I/O; every failure is a *ConfigError.
func BuildRequirement(cfg RouteConfig, ri RequestInfo) (PaymentRequirement, error) {
	if cfg.Price == nil {
		return PaymentRequirement{}, configErr("price", ErrInvalidAmount)
	}

	chain, err := LookupChain(cfg.Network)
	if err != nil {
		return PaymentRequirement{}, configErr("network", err)
	}

	amount, asset, err := cfg.Price.resolve(chain)
	if err != nil {
		return PaymentRequirement{}, configErr("price", err)
	}

	payTo, err := NormalizeAddress(chain.Type, cfg.PayTo)
	if err != nil {
		return PaymentRequirement{}, configErr("payTo", err)
	}
	assetAddress, err := NormalizeAddress(chain.Type, asset.Address)
	if err != nil {
		return PaymentRequirement{}, configErr("asset", err)
	}

	resource := cfg.Resource
	if resource == "" {
		resource = ri.URL()
	}

	mimeType := cfg.MimeType
	if mimeType == "" {
		mimeType = DefaultMimeType
	}

	timeout := cfg.MaxTimeoutSeconds
	if timeout < 0 {
		return PaymentRequirement{}, configErr("maxTimeoutSeconds", fmt.Errorf("%d is negative", timeout))
	}
	if timeout == 0 {
		timeout = DefaultMaxTimeoutSeconds
	}

	discoverable := true
	if cfg.Discoverable != nil {
		discoverable = *cfg.Discoverable
	}

	var extra map[string]any
	if asset.EIP712 != nil {
		extra = map[string]any{"name": asset.EIP712.Name, "version": asset.EIP712.Version}
	}
	if len(cfg.Extra) > 0 {
		if extra == nil {
			extra = make(map[string]any, len(cfg.Extra))
		}
		maps.Copy(extra, cfg.Extra)
	}

	return PaymentRequirement{
		Scheme:            SchemeExact,
		Network:           chain.NetworkID,
		MaxAmountRequired: amount.String(),
		Resource:          resource,
		Description:       cfg.Description,
		MimeType:          mimeType,
		PayTo:             payTo,
		MaxTimeoutSeconds: timeout,
		Asset:             assetAddress,
		Extra:             extra,
		OutputSchema: &OutputSchema{
			Input: InputSchema{
				Type:         inputType(ri),
				Method:       strings.ToUpper(ri.Method),
				Discoverable: discoverable,
			},
		},
	}, nil
}

func inputType(ri RequestInfo) InputSchemaType {
	if ri.Scheme == "mcp" {
		return InputSchemaTypeMCP
	}
	return InputSchemaTypeHTTP
}
