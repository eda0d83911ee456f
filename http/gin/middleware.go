// Package gin adapts the x402 gateway to Gin. It translates gin.Context to stdlib
// http patterns and delegates verification and settlement to the http package.
package gin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	httpx402 "github.com/x402cards/paygate/http"
)

// PaymentKey is the gin.Context key holding the verified *httpx402.Payment.
const PaymentKey = "x402_payment"

// EdgeMiddleware verifies payment for every route in cfg.Registry before the rest
// of the Gin chain runs. It never settles: mount the settling handler (see
// PaymentHandler) on the routes themselves.
//
// Example usage:
//
//	r := gin.Default()
//	r.Use(ginx402.EdgeMiddleware(httpx402.EdgeConfig{Registry: reg, Facilitator: fac}))
//	r.POST("/api/generate-image", ginx402.PaymentHandler(config, generate))
func EdgeMiddleware(cfg httpx402.EdgeConfig) gin.HandlerFunc {
	gate := httpx402.NewEdgeGate(cfg)
	return func(c *gin.Context) {
		passed := false
		gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
			if p, ok := httpx402.PaymentFromContext(r.Context()); ok {
				c.Set(PaymentKey, p)
			}
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)

		if !passed {
			c.Abort()
		}
	}
}

// PaymentHandler serves h behind httpx402.WithPayment. Gin's writer is handed to
// the gateway untouched so the receipt header and any settlement 402 reach the
// client exactly as net/http would send them.
func PaymentHandler(config *httpx402.Config, h http.Handler) gin.HandlerFunc {
	return gin.WrapH(httpx402.WithPayment(h, config))
}

// Payment returns the verified payment stored by EdgeMiddleware, or the one
// carried on the request context when the route is served by PaymentHandler.
func Payment(c *gin.Context) (*httpx402.Payment, bool) {
	if v, ok := c.Get(PaymentKey); ok {
		p, ok := v.(*httpx402.Payment)
		return p, ok
	}
	return httpx402.PaymentFromContext(c.Request.Context())
}
