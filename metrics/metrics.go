// Package metrics exports gateway outcomes as Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpx402 "github.com/x402cards/paygate/http"
)

// Metrics counts gateway events by route and outcome.
type Metrics struct {
	outcomes *prometheus.CounterVec
	gatherer prometheus.Gatherer
}

// New registers the gateway collectors with reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "x402",
			Subsystem: "gateway",
			Name:      "outcomes_total",
			Help:      "Gated requests by route and final outcome.",
		}, []string{"route", "outcome"}),
		gatherer: reg,
	}
	if err := reg.Register(m.outcomes); err != nil {
		return nil, err
	}
	return m, nil
}

// Observe records e. Its method value is an httpx402.Observer.
func (m *Metrics) Observe(e httpx402.Event) {
	m.outcomes.WithLabelValues(e.Route, string(e.Outcome)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Chain fans one event out to every non-nil observer in order.
func Chain(observers ...httpx402.Observer) httpx402.Observer {
	return func(e httpx402.Event) {
		for _, o := range observers {
			if o != nil {
				o(e)
			}
		}
	}
}
