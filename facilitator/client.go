package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/x402cards/paygate"
	"github.com/x402cards/paygate/retry"
)

// Default per-operation timeouts. Settlement waits for an on-chain transaction.
const (
	DefaultVerifyTimeout    = 5 * time.Second
	DefaultSettleTimeout    = 60 * time.Second
	DefaultSupportedTimeout = 10 * time.Second
)

// AuthorizationProvider returns the Authorization header value for an outgoing request.
// It sees the fully built request so that signed tokens can cover method and path.
type AuthorizationProvider func(req *http.Request) (string, error)

// OnBeforeFunc runs before a verify or settle call. Returning an error aborts the call.
type OnBeforeFunc func(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) error

// OnAfterVerifyFunc runs after every verify call.
type OnAfterVerifyFunc func(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement, resp *VerifyResponse, err error)

// OnAfterSettleFunc runs after every settle call.
type OnAfterSettleFunc func(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement, resp *x402.SettlementResponse, err error)

// Client is a facilitator reached over HTTP.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	VerifyTimeout    time.Duration
	SettleTimeout    time.Duration
	SupportedTimeout time.Duration

	// Authorization is a static Authorization header value, e.g. "Bearer key".
	Authorization string
	// AuthorizationProvider takes precedence over Authorization when set.
	AuthorizationProvider AuthorizationProvider

	// Retry applies to Supported only.
	Retry retry.Policy

	OnBeforeVerify OnBeforeFunc
	OnAfterVerify  OnAfterVerifyFunc
	OnBeforeSettle OnBeforeFunc
	OnAfterSettle  OnAfterSettleFunc

	Logger *slog.Logger
}

var _ Interface = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.HTTPClient = c }
}

// WithTimeouts overrides the verify and settle timeouts.
func WithTimeouts(verify, settle time.Duration) Option {
	return func(cl *Client) {
		cl.VerifyTimeout = verify
		cl.SettleTimeout = settle
	}
}

// WithAuthorization sets a static Authorization header value.
func WithAuthorization(value string) Option {
	return func(cl *Client) { cl.Authorization = value }
}

// WithAuthorizationProvider sets a dynamic Authorization header source.
func WithAuthorizationProvider(p AuthorizationProvider) Option {
	return func(cl *Client) { cl.AuthorizationProvider = p }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.Logger = l }
}

// WithRetryPolicy sets the retry policy used for Supported.
func WithRetryPolicy(p retry.Policy) Option {
	return func(cl *Client) { cl.Retry = p }
}

// NewClient creates a facilitator client for baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:          strings.TrimRight(baseURL, "/"),
		HTTPClient:       &http.Client{},
		VerifyTimeout:    DefaultVerifyTimeout,
		SettleTimeout:    DefaultSettleTimeout,
		SupportedTimeout: DefaultSupportedTimeout,
		Retry:            retry.DefaultPolicy,
		Logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify posts the payment to /verify. A non-200 response whose body still carries an
// invalidReason is reported as a rejected payment rather than a transport failure.
func (c *Client) Verify(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*VerifyResponse, error) {
	if c.OnBeforeVerify != nil {
		if err := c.OnBeforeVerify(ctx, payment, requirement); err != nil {
			return nil, fmt.Errorf("before verify hook: %w", err)
		}
	}

	resp, err := c.verify(ctx, payment, requirement)
	if c.OnAfterVerify != nil {
		c.OnAfterVerify(ctx, payment, requirement, resp, err)
	}
	return resp, err
}

func (c *Client) verify(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*VerifyResponse, error) {
	status, body, err := c.post(ctx, "/verify", c.timeout(c.VerifyTimeout, DefaultVerifyTimeout), payment, requirement)
	if err != nil {
		return nil, err
	}

	var verifyResp VerifyResponse
	decodeErr := json.Unmarshal(body, &verifyResp)
	if status != http.StatusOK {
		if decodeErr == nil && verifyResp.InvalidReason != "" {
			verifyResp.IsValid = false
			return &verifyResp, nil
		}
		return nil, fmt.Errorf("%w: verify returned status %d", x402.ErrFacilitatorUnavailable, status)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: failed to decode verify response: %v", x402.ErrFacilitatorUnavailable, decodeErr)
	}

	c.logger().Debug("facilitator verify", "valid", verifyResp.IsValid, "payer", verifyResp.Payer)
	return &verifyResp, nil
}

// Settle posts the payment to /settle. It is never retried.
func (c *Client) Settle(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	if c.OnBeforeSettle != nil {
		if err := c.OnBeforeSettle(ctx, payment, requirement); err != nil {
			return nil, fmt.Errorf("before settle hook: %w", err)
		}
	}

	resp, err := c.settle(ctx, payment, requirement)
	if c.OnAfterSettle != nil {
		c.OnAfterSettle(ctx, payment, requirement, resp, err)
	}
	return resp, err
}

func (c *Client) settle(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	status, body, err := c.post(ctx, "/settle", c.timeout(c.SettleTimeout, DefaultSettleTimeout), payment, requirement)
	if err != nil {
		return nil, err
	}

	var settlement x402.SettlementResponse
	decodeErr := json.Unmarshal(body, &settlement)
	if status != http.StatusOK {
		if decodeErr == nil && settlement.ErrorReason != "" {
			settlement.Success = false
			return &settlement, nil
		}
		return nil, fmt.Errorf("%w: settle returned status %d", x402.ErrSettlementFailed, status)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: failed to decode settle response: %v", x402.ErrSettlementFailed, decodeErr)
	}

	c.logger().Debug("facilitator settle", "success", settlement.Success, "transaction", settlement.Transaction)
	return &settlement, nil
}

// Supported fetches /supported, retrying transient failures.
func (c *Client) Supported(ctx context.Context) (*SupportedResponse, error) {
	return retry.Do(ctx, c.Retry, retry.Transient, func(ctx context.Context) (*SupportedResponse, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout(c.SupportedTimeout, DefaultSupportedTimeout))
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/supported", nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if err := c.authorize(req); err != nil {
			return nil, err
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, &retry.StatusError{Service: "facilitator", StatusCode: resp.StatusCode, Body: string(body)}
		}

		var supported SupportedResponse
		if err := json.NewDecoder(resp.Body).Decode(&supported); err != nil {
			return nil, fmt.Errorf("failed to decode supported response: %w", err)
		}
		return &supported, nil
	})
}

func (c *Client) post(ctx context.Context, path string, timeout time.Duration, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (int, []byte, error) {
	data, err := json.Marshal(Request{
		X402Version:         x402.X402Version,
		PaymentPayload:      payment,
		PaymentRequirements: requirement,
	})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(req); err != nil {
		return 0, nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: reading response: %v", x402.ErrFacilitatorUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger().Warn("facilitator returned non-200", "path", path, "status", resp.StatusCode)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) authorize(req *http.Request) error {
	if c.AuthorizationProvider != nil {
		value, err := c.AuthorizationProvider(req)
		if err != nil {
			return fmt.Errorf("authorization provider: %w", err)
		}
		if value != "" {
			req.Header.Set("Authorization", value)
		}
		return nil
	}
	if c.Authorization != "" {
		req.Header.Set("Authorization", c.Authorization)
	}
	return nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Client) timeout(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
