package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/x402cards/paygate"
	"github.com/x402cards/paygate/facilitator"
	httpx402 "github.com/x402cards/paygate/http"
	"github.com/x402cards/paygate/mcp"
	"github.com/x402cards/paygate/validation"
)

// RequirementLookup returns the payment requirement of a tool, if it is payable.
type RequirementLookup func(toolName string) (x402.PaymentRequirement, bool)

// X402Handler wraps an MCP HTTP handler and gates payable tools/call requests.
type X402Handler struct {
	mcpHandler http.Handler
	lookup     RequirementLookup
	config     *Config
}

// NewX402Handler creates a new x402 payment handler.
func NewX402Handler(mcpHandler http.Handler, lookup RequirementLookup, config *Config) *X402Handler {
	if config == nil {
		config = &Config{}
	}
	return &X402Handler{mcpHandler: mcpHandler, lookup: lookup, config: config}
}

type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

type toolCallParams struct {
	Name string         `json:"name"`
	Meta map[string]any `json:"_meta"`
}

// ServeHTTP intercepts HTTP requests to check for x402 payments.
func (h *X402Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.mcpHandler.ServeHTTP(w, r)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, nil, mcp.CodeParseError, "Parse error", nil)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	// JSON-RPC batches are not accepted.
	var req jsonrpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, mcp.CodeParseError, "Parse error", nil)
		return
	}
	if req.Method != "tools/call" {
		h.mcpHandler.ServeHTTP(w, r)
		return
	}

	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeError(w, req.ID, mcp.CodeInvalidParams, "Invalid params", nil)
		return
	}
	requirement, paid := h.lookup(params.Name)
	if !paid {
		h.mcpHandler.ServeHTTP(w, r)
		return
	}

	c := &paidCall{
		h:       h,
		w:       w,
		id:      req.ID,
		tool:    params.Name,
		route:   ToolResource(params.Name),
		accepts: []x402.PaymentRequirement{requirement},
	}
	v, ok := c.authorize(r.Context(), params.Meta)
	if !ok {
		return
	}
	c.forwardAndSettle(r, body, v.payment, v.requirement, v.payer)
}

// paidCall is the state of one payable tools/call request.
type paidCall struct {
	h       *X402Handler
	w       http.ResponseWriter
	id      json.RawMessage
	tool    string
	route   string
	accepts []x402.PaymentRequirement
}

func (c *paidCall) reject(kind x402.FailureKind, msg, payer string, err error) {
	writeError(c.w, c.id, mcp.CodePaymentRequired, msg, mcp.PaymentRequiredData{
		X402Version: x402.X402Version,
		Error:       msg,
		Accepts:     c.accepts,
		Payer:       payer,
	})
	c.h.config.observe(httpx402.Event{
		Route:   c.route,
		Outcome: httpx402.OutcomeOf(kind),
		Payer:   payer,
		Err:     &mcp.PaymentError{Err: err, Tool: c.tool, Kind: kind},
	})
}

type verifiedCall struct {
	payment     x402.PaymentPayload
	requirement x402.PaymentRequirement
	payer       string
}

// authorize demands, decodes, matches and verifies the proof in meta. On failure
// the JSON-RPC error has been written.
func (c *paidCall) authorize(ctx context.Context, meta map[string]any) (verifiedCall, bool) {
	logger := c.h.config.logger().With("tool", c.tool)

	raw, ok := meta[mcp.MetaKeyPayment]
	if !ok || raw == nil {
		logger.Info("no payment provided")
		c.reject(x402.FailureProofMissing, "Payment required to access this resource", "", x402.ErrPaymentRequired)
		return verifiedCall{}, false
	}

	payment, err := decodeMetaPayment(raw)
	if err != nil {
		logger.Warn("invalid payment", "error", err)
		c.reject(x402.FailureProofMalformed, err.Error(), "", err)
		return verifiedCall{}, false
	}

	matched, err := x402.FindMatchingRequirement(payment, c.accepts)
	if err != nil {
		logger.Warn("no matching requirement", "network", payment.Network, "error", err)
		c.reject(x402.FailureNoMatchingRequirement, "Unable to find matching payment requirements", "", err)
		return verifiedCall{}, false
	}

	resp, err := c.verify(ctx, payment, *matched)
	if err != nil {
		logger.Error("facilitator verification failed", "error", err)
		c.reject(x402.FailureVerification, "Payment verification failed", "", err)
		return verifiedCall{}, false
	}
	if !resp.IsValid {
		reason := resp.InvalidReason
		if reason == "" {
			reason = "Payment verification failed"
		}
		logger.Warn("payment rejected", "payer", resp.Payer, "reason", reason)
		c.reject(x402.FailureVerification, reason, resp.Payer, fmt.Errorf("%w: %s", x402.ErrVerificationFailed, reason))
		return verifiedCall{}, false
	}

	logger.Info("payment verified", "payer", resp.Payer)
	return verifiedCall{payment: payment, requirement: *matched, payer: resp.Payer}, true
}

func (c *paidCall) verify(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
	cfg := c.h.config
	if cfg.Facilitator == nil {
		return nil, x402.ErrFacilitatorUnavailable
	}
	resp, err := facilitator.Recovering(cfg.Facilitator).Verify(ctx, payment, requirement)
	if err != nil && cfg.FallbackFacilitator != nil {
		cfg.logger().Warn("primary facilitator failed, trying fallback", "tool", c.tool, "error", err)
		resp, err = facilitator.Recovering(cfg.FallbackFacilitator).Verify(ctx, payment, requirement)
	}
	if err == nil && resp == nil {
		err = x402.ErrFacilitatorUnavailable
	}
	return resp, err
}

// forwardAndSettle runs the tool and settles when it returned a non-error result.
// The receipt is injected into result._meta.
func (c *paidCall) forwardAndSettle(r *http.Request, body []byte, payment x402.PaymentPayload, requirement x402.PaymentRequirement, payer string) {
	cfg := c.h.config
	logger := cfg.logger().With("tool", c.tool, "payer", payer)

	rec := &responseRecorder{headerMap: make(http.Header), statusCode: http.StatusOK}
	r.Body = io.NopCloser(bytes.NewReader(body))
	c.h.mcpHandler.ServeHTTP(rec, r)

	var resp jsonrpcResponse
	if err := json.Unmarshal(rec.body.Bytes(), &resp); err != nil {
		logger.Warn("tool response is not a single JSON-RPC message, payment not settled", "error", err)
		rec.flushTo(c.w, rec.body.Bytes())
		cfg.observe(httpx402.Event{Route: c.route, Outcome: httpx402.OutcomeHandlerError, Payer: payer, Err: err})
		return
	}

	var result map[string]any
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			result = nil
		}
	}
	if !isNull(resp.Error) || result == nil || result["isError"] == true {
		logger.Info("tool failed, payment will not be settled")
		rec.flushTo(c.w, rec.body.Bytes())
		cfg.observe(httpx402.Event{Route: c.route, Outcome: httpx402.OutcomeHandlerError, Payer: payer, Err: mcp.ErrToolExecutionFailed})
		return
	}

	settleCtx := context.WithoutCancel(r.Context())
	logger.Info("settling payment")
	settlement, err := facilitator.Recovering(cfg.Facilitator).Settle(settleCtx, payment, requirement)
	var reason string
	switch {
	case err != nil:
		reason = err.Error()
	case settlement == nil || !settlement.Success:
		reason = "Settlement failed"
		if settlement != nil && settlement.ErrorReason != "" {
			reason = settlement.ErrorReason
		}
		err = fmt.Errorf("%w: %s", x402.ErrSettlementFailed, reason)
	}
	if err != nil {
		logger.Error("settlement failed", "error", err)
		c.reject(x402.FailureSettlement, reason, "", err)
		if cfg.OnSettlementFailure != nil {
			cfg.OnSettlementFailure(settleCtx, c.tool, payment, err)
		}
		return
	}
	logger.Info("payment settled", "transaction", settlement.Transaction)

	meta, _ := result["_meta"].(map[string]any)
	if meta == nil {
		meta = make(map[string]any)
	}
	meta[mcp.MetaKeyPaymentResponse] = x402.SettlementResponse{
		Success:     true,
		Transaction: settlement.Transaction,
		Network:     settlement.Network,
		Payer:       settlement.Payer,
	}
	result["_meta"] = meta

	out, err := json.Marshal(result)
	if err == nil {
		resp.Result = out
		out, err = json.Marshal(resp)
	}
	if err != nil {
		logger.Error("failed to attach receipt", "error", err)
		out = rec.body.Bytes()
	}
	rec.flushTo(c.w, out)
	cfg.observe(httpx402.Event{Route: c.route, Outcome: httpx402.OutcomeSettled, Payer: payer, Transaction: settlement.Transaction})
}

// decodeMetaPayment converts the loosely typed _meta value into a validated payment.
func decodeMetaPayment(raw any) (x402.PaymentPayload, error) {
	var payment x402.PaymentPayload
	data, err := json.Marshal(raw)
	if err != nil {
		return payment, fmt.Errorf("%w: %v", x402.ErrMalformedHeader, err)
	}
	if err := json.Unmarshal(data, &payment); err != nil {
		return payment, fmt.Errorf("%w: %v", x402.ErrMalformedHeader, err)
	}
	if err := validation.ValidatePaymentPayload(payment); err != nil {
		return payment, err
	}
	if err := x402.DecodePayment(&payment); err != nil {
		return payment, err
	}
	return payment, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// writeError writes a JSON-RPC error response. JSON-RPC errors use HTTP 200.
func writeError(w http.ResponseWriter, id json.RawMessage, code int, message string, data any) {
	errBody := map[string]any{"code": code, "message": message}
	if data != nil {
		errBody["data"] = data
	}
	if len(id) == 0 {
		id = json.RawMessage("null")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   errBody,
	})
}

// responseRecorder records the MCP handler's response for inspection.
type responseRecorder struct {
	headerMap  http.Header
	body       bytes.Buffer
	statusCode int
}

func (r *responseRecorder) Header() http.Header {
	return r.headerMap
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	return r.body.Write(b)
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
}

func (r *responseRecorder) flushTo(w http.ResponseWriter, body []byte) {
	for k, v := range r.headerMap {
		w.Header()[k] = v
	}
	w.Header().Del("Content-Length")
	w.WriteHeader(r.statusCode)
	_, _ = w.Write(body)
}
