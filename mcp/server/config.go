package server

import (
	"context"
	"log/slog"

	"github.com/x402cards/paygate"
	"github.com/x402cards/paygate/facilitator"
	httpx402 "github.com/x402cards/paygate/http"
)

// Config holds configuration for the MCP server with x402 payment support.
type Config struct {
	// Facilitator verifies and settles tool payments. Required for payable tools.
	Facilitator facilitator.Interface

	// FallbackFacilitator is consulted for verification only.
	FallbackFacilitator facilitator.Interface

	Logger *slog.Logger

	// Observer receives one event per paid tool call; Event.Route is "mcp://tools/<name>".
	Observer httpx402.Observer

	// OnSettlementFailure runs when a tool succeeded but its payment did not settle.
	OnSettlementFailure func(ctx context.Context, tool string, payment x402.PaymentPayload, err error)
}

func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Config) observe(e httpx402.Event) {
	if c.Observer != nil {
		c.Observer(e)
	}
}
