package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/x402cards/paygate"
	"github.com/x402cards/paygate/encoding"
	"github.com/x402cards/paygate/facilitator"
)

// Outcome is the final state of one gated request.
type Outcome string

const (
	// OutcomeSettled means the handler succeeded and the payment settled.
	OutcomeSettled Outcome = "settled"
	// OutcomeVerified means the edge gate forwarded a verified request.
	OutcomeVerified Outcome = "verified"
	// OutcomeHandlerError means the handler answered >= 400 and nothing was charged.
	OutcomeHandlerError Outcome = "handler_error"
)

// OutcomeOf maps a failure kind to its outcome label.
func OutcomeOf(kind x402.FailureKind) Outcome { return Outcome(kind) }

// Event is reported to an Observer once per gated request.
type Event struct {
	Route       string
	Outcome     Outcome
	Payer       string
	Transaction string
	Err         error
}

// Observer receives gateway events. It runs on the request goroutine.
type Observer func(Event)

// paywall runs the steps shared by WithPayment and the edge gate: build the
// requirement, demand and decode the proof, match it and verify it.
type paywall struct {
	facilitator facilitator.Interface
	fallback    facilitator.Interface
	logger      *slog.Logger
	observer    Observer
}

// verified is the state a successful authorize hands to the caller.
type verified struct {
	requirement x402.PaymentRequirement
	accepts     []x402.PaymentRequirement
	payment     x402.PaymentPayload
	payer       string
}

func newPaywall(primary, fallback facilitator.Interface, logger *slog.Logger, observer Observer) *paywall {
	if logger == nil {
		logger = slog.Default()
	}
	return &paywall{
		facilitator: facilitator.Recovering(primary),
		fallback:    facilitator.Recovering(fallback),
		logger:      logger,
		observer:    observer,
	}
}

// authorize runs steps 1 to 5 for r. On failure it has already written the response
// and returns nil.
func (p *paywall) authorize(w http.ResponseWriter, r *http.Request, route x402.RouteConfig) *verified {
	msgs := route.ErrorMessages
	path := r.URL.Path

	requirement, err := x402.BuildRequirement(route, requestInfo(r))
	if err != nil {
		p.logger.Error("invalid route payment configuration", "path", path, "error", err)
		sendError(w, http.StatusInternalServerError, err.Error())
		p.observe(Event{Route: path, Outcome: OutcomeOf(x402.FailureConfiguration), Err: err})
		return nil
	}
	accepts := []x402.PaymentRequirement{requirement}

	reject := func(kind x402.FailureKind, msg, payer string, err error) *verified {
		sendPaymentRequired(w, msg, accepts, payer)
		p.observe(Event{Route: path, Outcome: OutcomeOf(kind), Payer: payer, Err: err})
		return nil
	}

	header := r.Header.Get(x402.PaymentHeader)
	if header == "" {
		p.logger.Info("no payment header provided", "path", path)
		return reject(x402.FailureProofMissing, message(msgs.PaymentRequired, "X-PAYMENT header is required"), "", x402.ErrPaymentRequired)
	}

	payment, err := decodeProof(header)
	if err != nil {
		p.logger.Warn("invalid payment header", "path", path, "error", err)
		return reject(x402.FailureProofMalformed, message(msgs.InvalidPayment, message(err.Error(), "Invalid payment")), "", err)
	}

	matched, err := x402.FindMatchingRequirement(payment, accepts)
	if err != nil {
		p.logger.Warn("no matching requirement", "path", path, "network", payment.Network, "error", err)
		return reject(x402.FailureNoMatchingRequirement, message(msgs.NoMatchingRequirements, "Unable to find matching payment requirements"), "", err)
	}

	p.logger.Info("verifying payment", "path", path, "scheme", payment.Scheme, "network", payment.Network)
	resp, err := p.verify(r.Context(), payment, *matched)
	if err != nil {
		p.logger.Error("facilitator verification failed", "path", path, "error", err)
		return reject(x402.FailureVerification, message(msgs.VerificationFailed, "Payment verification failed"), "", err)
	}
	if !resp.IsValid {
		p.logger.Warn("payment verification failed", "path", path, "payer", resp.Payer, "reason", resp.InvalidReason)
		reason := message(resp.InvalidReason, "Payment verification failed")
		return reject(x402.FailureVerification, message(msgs.VerificationFailed, reason), resp.Payer, errors.New(reason))
	}

	p.logger.Info("payment verified", "path", path, "payer", resp.Payer)
	return &verified{requirement: *matched, accepts: accepts, payment: payment, payer: resp.Payer}
}

// verify asks the primary facilitator and, on transport failure only, the fallback.
func (p *paywall) verify(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
	if p.facilitator == nil {
		return nil, x402.ErrFacilitatorUnavailable
	}
	resp, err := p.facilitator.Verify(ctx, payment, requirement)
	if err != nil && p.fallback != nil {
		p.logger.Warn("primary facilitator failed, trying fallback", "error", err)
		resp, err = p.fallback.Verify(ctx, payment, requirement)
	}
	if err == nil && resp == nil {
		err = x402.ErrFacilitatorUnavailable
	}
	return resp, err
}

func (p *paywall) observe(e Event) {
	if p.observer != nil {
		p.observer(e)
	}
}

// decodeProof parses the X-PAYMENT header and runs the scheme-specific decode.
func decodeProof(header string) (x402.PaymentPayload, error) {
	payment, err := encoding.DecodePayment(header)
	if err != nil {
		return payment, err
	}
	if err := x402.DecodePayment(&payment); err != nil {
		return payment, err
	}
	return payment, nil
}
