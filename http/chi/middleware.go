// Package chi adapts the x402 gateway to chi routers.
package chi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	httpx402 "github.com/x402cards/paygate/http"
)

// Middleware returns a chi middleware that gates every route it is mounted on with
// the verify, handle, settle flow of httpx402.WithPayment.
//
// OPTIONS requests bypass payment so CORS preflights keep working.
//
// Example usage:
//
//	r := chi.NewRouter()
//	r.With(chix402.Middleware(&httpx402.Config{
//	    Route:       x402.RouteConfig{Price: x402.Money("$0.01"), Network: "base-sepolia", PayTo: payTo},
//	    Facilitator: facilitator.NewClient("https://x402.org/facilitator"),
//	})).Post("/api/generate-image", handler)
func Middleware(config *httpx402.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		paid := httpx402.WithPayment(next, config)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			paid.ServeHTTP(w, r)
		})
	}
}

// ValidateRegistry checks that every paid route in reg is served by router. A
// registry entry with no matching route would charge for a request that 404s.
func ValidateRegistry(router chi.Routes, reg *httpx402.Registry) error {
	served := make(map[string]bool)
	err := chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		served[method+" "+strings.TrimSuffix(route, "/*")] = true
		if route != "/" {
			served[method+" "+strings.TrimSuffix(route, "/")] = true
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking router: %w", err)
	}

	var missing []string
	for _, key := range reg.Keys() {
		if !served[key] {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("paid routes not served by router: %s", strings.Join(missing, ", "))
	}
	return nil
}
