package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/x402cards/paygate"
	"github.com/x402cards/paygate/encoding"
	"github.com/x402cards/paygate/validation"
)

// X402Transport is a RoundTripper that answers 402 Payment Required responses by
// signing one of the offered requirements and retrying the request once.
type X402Transport struct {
	// Base is the underlying RoundTripper (typically http.DefaultTransport).
	Base http.RoundTripper

	// Signers is the list of available payment signers.
	Signers []x402.Signer

	// Selector chooses the requirement and signer.
	Selector x402.PaymentSelector

	OnPaymentAttempt x402.PaymentCallback
	OnPaymentSuccess x402.PaymentCallback
	OnPaymentFailure x402.PaymentCallback
}

// RoundTrip implements http.RoundTripper.
func (t *X402Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	selector := t.Selector
	if selector == nil {
		selector = x402.NewDefaultPaymentSelector()
	}

	// The body is sent twice when payment is required.
	nextRequest, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	first, err := nextRequest()
	if err != nil {
		return nil, err
	}
	resp, err := base.RoundTrip(first)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	requirements, err := parsePaymentRequirements(resp)
	resp.Body.Close()
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeInvalidRequirements, "failed to parse payment requirements", err)
	}

	payment, selected, err := selector.SelectAndSign(requirements, t.Signers)
	if err != nil {
		t.emit(t.OnPaymentFailure, x402.PaymentEvent{Type: x402.PaymentEventFailure, URL: req.URL.String(), Error: err})
		return nil, err
	}

	start := time.Now()
	event := x402.PaymentEvent{
		URL:       req.URL.String(),
		Network:   selected.Network,
		Scheme:    selected.Scheme,
		Amount:    selected.MaxAmountRequired,
		Asset:     selected.Asset,
		Recipient: selected.PayTo,
	}
	attempt := event
	attempt.Type = x402.PaymentEventAttempt
	t.emit(t.OnPaymentAttempt, attempt)

	header, err := encoding.EncodePayment(*payment)
	if err != nil {
		failure := event
		failure.Type, failure.Error, failure.Duration = x402.PaymentEventFailure, err, time.Since(start)
		t.emit(t.OnPaymentFailure, failure)
		return nil, x402.NewPaymentError(x402.ErrCodeSigningFailed, "failed to build payment header", err)
	}

	retry, err := nextRequest()
	if err != nil {
		return nil, err
	}
	retry.Header.Set(x402.PaymentHeader, header)

	respRetry, err := base.RoundTrip(retry)
	duration := time.Since(start)
	if err != nil {
		failure := event
		failure.Type, failure.Error, failure.Duration = x402.PaymentEventFailure, err, duration
		t.emit(t.OnPaymentFailure, failure)
		return nil, err
	}

	if settlement := GetSettlement(respRetry); settlement != nil && settlement.Success {
		success := event
		success.Type, success.Duration = x402.PaymentEventSuccess, duration
		success.Transaction, success.Payer = settlement.Transaction, settlement.Payer
		t.emit(t.OnPaymentSuccess, success)
	} else if respRetry.StatusCode == http.StatusPaymentRequired {
		failure := event
		failure.Type, failure.Duration = x402.PaymentEventFailure, duration
		failure.Error = fmt.Errorf("%w: payment rejected by server", x402.ErrPaymentRequired)
		t.emit(t.OnPaymentFailure, failure)
	}

	return respRetry, nil
}

func (t *X402Transport) emit(cb x402.PaymentCallback, event x402.PaymentEvent) {
	if cb == nil {
		return
	}
	event.Timestamp = time.Now()
	cb(event)
}

// replayableBody returns a function producing clones of req, each with a fresh body.
func replayableBody(req *http.Request) (func() (*http.Request, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return func() (*http.Request, error) { return req.Clone(req.Context()), nil }, nil
	}

	getBody := req.GetBody
	if getBody == nil {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			req.Body.Close()
			return nil, fmt.Errorf("failed to buffer request body: %w", err)
		}
		getBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil }
	}
	req.Body.Close()

	return func() (*http.Request, error) {
		body, err := getBody()
		if err != nil {
			return nil, fmt.Errorf("failed to replay request body: %w", err)
		}
		clone := req.Clone(req.Context())
		clone.Body = body
		clone.GetBody = getBody
		return clone, nil
	}, nil
}

// parsePaymentRequirements extracts the requirements a 402 response offers, dropping
// any the client could not safely sign.
func parsePaymentRequirements(resp *http.Response) ([]x402.PaymentRequirement, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var prr x402.PaymentRequirementsResponse
	if err := json.Unmarshal(body, &prr); err != nil {
		return nil, fmt.Errorf("failed to parse payment requirements JSON: %w", err)
	}
	if len(prr.Accepts) == 0 {
		return nil, fmt.Errorf("no payment requirements in response")
	}

	valid := prr.Accepts[:0]
	var lastErr error
	for _, req := range prr.Accepts {
		if err := validation.ValidatePaymentRequirement(req); err != nil {
			lastErr = err
			continue
		}
		valid = append(valid, req)
	}
	if len(valid) == 0 {
		return nil, lastErr
	}
	return valid, nil
}
