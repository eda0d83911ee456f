package http

import (
	"fmt"
	"net/http"

	"github.com/x402cards/paygate"
	"github.com/x402cards/paygate/encoding"
)

// Client is an HTTP client that automatically handles x402 payment flows.
// It wraps a standard http.Client and adds payment handling via X402Transport.
type Client struct {
	*http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// NewClient creates a new x402-enabled HTTP client.
func NewClient(opts ...ClientOption) (*Client, error) {
	client := &Client{Client: &http.Client{}}

	for _, opt := range opts {
		if err := opt(client); err != nil {
			return nil, err
		}
	}
	transport(client)
	return client, nil
}

// WithHTTPClient sets a custom underlying HTTP client. It must come before the
// other options.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) error {
		if httpClient == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		c.Client = httpClient
		return nil
	}
}

// WithSigner adds a payment signer to the client.
// Multiple signers can be added; the selector picks one per payment.
func WithSigner(signer x402.Signer) ClientOption {
	return func(c *Client) error {
		if signer == nil {
			return x402.ErrNoValidSigner
		}
		t := transport(c)
		t.Signers = append(t.Signers, signer)
		return nil
	}
}

// WithSelector sets a custom payment selector.
func WithSelector(selector x402.PaymentSelector) ClientOption {
	return func(c *Client) error {
		transport(c).Selector = selector
		return nil
	}
}

// WithPaymentCallback sets a callback for a specific payment event type.
func WithPaymentCallback(eventType x402.PaymentEventType, callback x402.PaymentCallback) ClientOption {
	return func(c *Client) error {
		t := transport(c)
		switch eventType {
		case x402.PaymentEventAttempt:
			t.OnPaymentAttempt = callback
		case x402.PaymentEventSuccess:
			t.OnPaymentSuccess = callback
		case x402.PaymentEventFailure:
			t.OnPaymentFailure = callback
		default:
			return fmt.Errorf("unknown payment event type: %s", eventType)
		}
		return nil
	}
}

// transport returns the client's X402Transport, wrapping the current transport in one
// if needed.
func transport(c *Client) *X402Transport {
	if t, ok := c.Transport.(*X402Transport); ok {
		return t
	}
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	t := &X402Transport{Base: base, Selector: x402.NewDefaultPaymentSelector()}
	c.Transport = t
	return t
}

// GetSettlement extracts the receipt from a paid response, or nil if there is none.
func GetSettlement(resp *http.Response) *x402.SettlementResponse {
	header := resp.Header.Get(x402.PaymentResponseHeader)
	if header == "" {
		return nil
	}
	settlement, err := encoding.DecodeSettlement(header)
	if err != nil {
		return nil
	}
	return &settlement
}
