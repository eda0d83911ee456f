// Package pocketbase adapts the x402 gateway to PocketBase routes.
package pocketbase

import (
	"context"
	"net/http"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"

	httpx402 "github.com/x402cards/paygate/http"
)

// PaymentKey is the RequestEvent store key holding the verified *httpx402.Payment.
const PaymentKey = "x402_payment"

type callKey struct{}

// call carries the PocketBase event through the gateway and the handler error back out.
type call struct {
	e   *core.RequestEvent
	err error
}

// WithPayment returns a PocketBase middleware that gates the rest of the chain with
// httpx402.WithPayment. A handler error is rendered as its API error before the
// gateway sees the status, so failed requests are never settled.
//
// Example usage:
//
//	se.Router.POST("/api/generate-image", generate).BindFunc(pbx402.WithPayment(config))
func WithPayment(config *httpx402.Config) func(e *core.RequestEvent) error {
	paid := httpx402.WithPayment(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := r.Context().Value(callKey{}).(*call)
		c.e.Response = w
		c.e.Request = r
		if p, ok := httpx402.PaymentFromContext(r.Context()); ok {
			c.e.Set(PaymentKey, p)
		}

		if err := c.e.Next(); err != nil {
			apiErr := router.ToApiError(err)
			c.err = c.e.JSON(apiErr.Status, apiErr)
		}
	}), config)

	return func(e *core.RequestEvent) error {
		c := &call{e: e}
		w := e.Response
		paid.ServeHTTP(w, e.Request.WithContext(context.WithValue(e.Request.Context(), callKey{}, c)))
		return c.err
	}
}

// Payment returns the verified payment of a gated request.
func Payment(e *core.RequestEvent) (*httpx402.Payment, bool) {
	p, ok := e.Get(PaymentKey).(*httpx402.Payment)
	return p, ok
}
