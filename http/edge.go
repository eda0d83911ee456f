package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/x402cards/paygate"
	"github.com/x402cards/paygate/facilitator"
	"github.com/x402cards/paygate/validation"
)

// RouteTable maps "METHOD /path" keys to route configurations. A route without PayTo
// inherits the registry's recipient.
type RouteTable map[string]x402.RouteConfig

// Registry is a validated, immutable set of paid routes.
type Registry struct {
	routes map[routeKey]x402.RouteConfig
}

type routeKey struct {
	method string
	path   string
}

func (k routeKey) String() string { return k.method + " " + k.path }

// NewRegistry validates every key and dry-runs every route's requirement build, so a
// misconfigured table fails at startup rather than on the first paid request.
func NewRegistry(payTo string, table RouteTable) (*Registry, error) {
	reg := &Registry{routes: make(map[routeKey]x402.RouteConfig, len(table))}

	for key, cfg := range table {
		method, path, err := validation.ValidateRouteKey(key)
		if err != nil {
			return nil, err
		}
		k := routeKey{method: method, path: path}
		if _, dup := reg.routes[k]; dup {
			return nil, &x402.ConfigError{Field: "routes", Err: fmt.Errorf("duplicate route %q", k)}
		}

		if cfg.PayTo == "" {
			cfg.PayTo = payTo
		}
		if _, err := x402.BuildRequirement(cfg, x402.RequestInfo{Method: method, Host: "localhost", Path: path}); err != nil {
			return nil, fmt.Errorf("route %q: %w", key, err)
		}
		reg.routes[k] = cfg
	}
	return reg, nil
}

// Lookup returns the configuration of the route matching method and path exactly.
func (r *Registry) Lookup(method, path string) (x402.RouteConfig, bool) {
	if r == nil {
		return x402.RouteConfig{}, false
	}
	cfg, ok := r.routes[routeKey{method: method, path: path}]
	return cfg, ok
}

// Keys returns the registered "METHOD /path" keys in sorted order.
func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.routes))
	for k := range r.routes {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	return keys
}

// EdgeConfig configures NewEdgeGate.
type EdgeConfig struct {
	Registry *Registry

	Facilitator         facilitator.Interface
	FallbackFacilitator facilitator.Interface

	Logger *slog.Logger

	// MaxBodyBytes bounds the buffered body of a paid request. Zero means unbounded.
	MaxBodyBytes int64

	// Inspect, when set, sees a clone of the request with its own reader over the
	// buffered body. It runs only for requests carrying a payment header, before
	// verification. An error rejects the request with 400.
	Inspect func(r *http.Request) error

	Observer Observer
}

// NewEdgeGate returns a pre-routing middleware that verifies payments for the routes
// in the registry. It never settles: settlement belongs to the handler-level gateway.
// Requests for unregistered routes pass through with their body untouched.
func NewEdgeGate(cfg EdgeConfig) func(http.Handler) http.Handler {
	pw := newPaywall(cfg.Facilitator, cfg.FallbackFacilitator, cfg.Logger, cfg.Observer)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, ok := cfg.Registry.Lookup(r.Method, r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			// Without a proof the answer is a 402; the body is never read.
			if r.Header.Get(x402.PaymentHeader) == "" {
				pw.authorize(w, r, route)
				return
			}

			body, err := bufferBody(w, r, cfg.MaxBodyBytes)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					pw.logger.Warn("request body too large", "path", r.URL.Path, "limit", tooLarge.Limit)
					sendError(w, http.StatusRequestEntityTooLarge, "Request body too large")
					return
				}
				pw.logger.Warn("failed to read request body", "path", r.URL.Path, "error", err)
				sendError(w, http.StatusBadRequest, "Failed to read request body")
				return
			}

			if cfg.Inspect != nil {
				clone := r.Clone(r.Context())
				setBody(clone, body)
				if err := cfg.Inspect(clone); err != nil {
					pw.logger.Warn("request rejected by inspector", "path", r.URL.Path, "error", err)
					sendError(w, http.StatusBadRequest, err.Error())
					return
				}
			}

			v := pw.authorize(w, r, route)
			if v == nil {
				return
			}

			pw.observe(Event{Route: r.URL.Path, Outcome: OutcomeVerified, Payer: v.payer})
			r = r.WithContext(contextWithPayment(r.Context(), &Payment{Payer: v.payer, Payload: v.payment, Requirement: v.requirement}))
			setBody(r, body)
			next.ServeHTTP(w, r)
		})
	}
}

func bufferBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	src := r.Body
	if limit > 0 {
		src = http.MaxBytesReader(w, r.Body, limit)
	}
	defer src.Close()
	return io.ReadAll(src)
}

// setBody gives r a fresh reader over body and a GetBody that yields more.
func setBody(r *http.Request, body []byte) {
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
}
