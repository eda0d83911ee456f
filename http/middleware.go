// Package http provides net/http payment gating for x402: a per-handler gateway that
// verifies, runs and settles, an edge gate that verifies before routing, and a paying
// client.
package http

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/x402cards/paygate"
	"github.com/x402cards/paygate/facilitator"
)

// Config holds the configuration for WithPayment.
type Config struct {
	// Route is the payment configuration of the wrapped handler.
	Route x402.RouteConfig

	// Facilitator verifies and settles payments. Required.
	Facilitator facilitator.Interface

	// FallbackFacilitator is consulted for verification only, when the primary
	// cannot be reached. Settlement never falls back.
	FallbackFacilitator facilitator.Interface

	Logger *slog.Logger

	// Observer, when set, receives one Event per request.
	Observer Observer

	// OnSettlementFailure runs after the handler did its work but the payment did
	// not settle, so the application can compensate for the unpaid side effect.
	OnSettlementFailure func(ctx context.Context, payment *Payment, err error)
}

// WithPayment wraps next with the verify, handle, settle flow. The handler runs at
// most once per request and only after its payment has been verified. Settlement
// happens when the handler commits a status below 400; a failed settlement replaces
// the handler's response with a 402.
func WithPayment(next http.Handler, config *Config) http.Handler {
	pw := newPaywall(config.Facilitator, config.FallbackFacilitator, config.Logger, config.Observer)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := pw.authorize(w, r, config.Route)
		if v == nil {
			return
		}

		payment := &Payment{Payer: v.payer, Payload: v.payment, Requirement: v.requirement}
		r = r.WithContext(contextWithPayment(r.Context(), payment))

		// Settlement outlives a client disconnect: the handler's work is done by then.
		settleCtx := context.WithoutCancel(r.Context())
		path := r.URL.Path

		interceptor := &settlementInterceptor{
			w:      w,
			header: make(http.Header),
			settle: func(h http.Header) bool {
				pw.logger.Info("settling payment", "path", path, "payer", v.payer)
				settlement, err := pw.facilitator.Settle(settleCtx, v.payment, v.requirement)
				var reason string
				switch {
				case err != nil:
					reason = message(err.Error(), "Settlement failed")
				case settlement == nil || !settlement.Success:
					reason = "Settlement failed"
					if settlement != nil && settlement.ErrorReason != "" {
						reason = settlement.ErrorReason
					}
					err = fmt.Errorf("%w: %s", x402.ErrSettlementFailed, reason)
				}
				if err != nil {
					pw.logger.Error("settlement failed", "path", path, "payer", v.payer, "error", err)
					sendPaymentRequired(w, message(config.Route.ErrorMessages.SettlementFailed, reason), v.accepts, "")
					pw.observe(Event{Route: path, Outcome: OutcomeOf(x402.FailureSettlement), Payer: v.payer, Err: err})
					if config.OnSettlementFailure != nil {
						config.OnSettlementFailure(settleCtx, payment, err)
					}
					return false
				}

				pw.logger.Info("payment settled", "path", path, "payer", settlement.Payer, "transaction", settlement.Transaction)
				if err := addPaymentResponseHeader(h, settlement); err != nil {
					pw.logger.Warn("failed to add payment response header", "error", err)
				}
				pw.observe(Event{Route: path, Outcome: OutcomeSettled, Payer: settlement.Payer, Transaction: settlement.Transaction})
				return true
			},
			onHandlerError: func(status int) {
				pw.logger.Warn("handler returned non-success, skipping payment settlement", "path", path, "status", status)
				pw.observe(Event{Route: path, Outcome: OutcomeHandlerError, Payer: v.payer})
			},
		}

		next.ServeHTTP(interceptor, r)

		// A handler that returns without writing is an implicit 200.
		if !interceptor.committed {
			interceptor.WriteHeader(http.StatusOK)
		}
	})
}

// settlementInterceptor wraps the ResponseWriter to intercept the moment of commitment.
// Handler headers are held back until then so a failed settlement leaks none of them.
type settlementInterceptor struct {
	w      http.ResponseWriter
	header http.Header

	// settle performs the settlement and, on success, adds the receipt to h. On
	// failure it has already written the 402 to the underlying writer.
	settle         func(h http.Header) bool
	onHandlerError func(status int)

	committed bool
	replaced  bool
}

func (i *settlementInterceptor) Header() http.Header {
	if i.committed {
		return i.w.Header()
	}
	return i.header
}

func (i *settlementInterceptor) Write(b []byte) (int, error) {
	// If the handler calls Write without WriteHeader, it implies 200 OK.
	if !i.committed {
		i.WriteHeader(http.StatusOK)
	}

	// Settlement failed and the 402 has been written; the handler's payload is dropped.
	if i.replaced {
		return len(b), nil
	}
	return i.w.Write(b)
}

func (i *settlementInterceptor) WriteHeader(statusCode int) {
	if i.committed {
		return
	}
	// Informational responses do not commit. Held headers are not sent with them.
	if statusCode >= 100 && statusCode < 200 && statusCode != http.StatusSwitchingProtocols {
		i.w.WriteHeader(statusCode)
		return
	}
	i.committed = true

	if statusCode >= 400 {
		if i.onHandlerError != nil {
			i.onHandlerError(statusCode)
		}
		i.commitHeaders()
		i.w.WriteHeader(statusCode)
		return
	}

	if !i.settle(i.header) {
		i.replaced = true
		return
	}
	i.commitHeaders()
	i.w.WriteHeader(statusCode)
}

func (i *settlementInterceptor) commitHeaders() {
	dst := i.w.Header()
	for k, v := range i.header {
		dst[k] = v
	}
}

// Flush implements http.Flusher to support streaming responses. The first flush
// commits the status, and with it the settlement.
func (i *settlementInterceptor) Flush() {
	if !i.committed {
		i.WriteHeader(http.StatusOK)
	}
	if i.replaced {
		return
	}
	if flusher, ok := i.w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Push implements http.Pusher to support HTTP/2 server push.
func (i *settlementInterceptor) Push(target string, opts *http.PushOptions) error {
	if pusher, ok := i.w.(http.Pusher); ok {
		return pusher.Push(target, opts)
	}
	return http.ErrNotSupported
}

// Hijack refuses to hand over the connection. A hijacked response has no status to
// commit, so it could never be settled. http.ResponseController stops here rather
// than following Unwrap.
func (i *settlementInterceptor) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return nil, nil, http.ErrNotSupported
}

// Unwrap lets http.ResponseController reach the underlying writer for deadlines.
func (i *settlementInterceptor) Unwrap() http.ResponseWriter {
	return i.w
}
