package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	mcpproto "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/x402cards/paygate"
	"github.com/x402cards/paygate/facilitator"
	"github.com/x402cards/paygate/facilitator/facilitatortest"
	httpx402 "github.com/x402cards/paygate/http"
	"github.com/x402cards/paygate/mcp"
)

const payTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"

func testRoute() x402.RouteConfig {
	return x402.RouteConfig{Price: x402.Money("$0.05"), Network: "base-sepolia", PayTo: payTo, Description: "Generate a card"}
}

type rpcResponse struct {
	ID     json.RawMessage `json:"id"`
	Result map[string]any  `json:"result"`
	Error  *struct {
		Code    int                     `json:"code"`
		Message string                  `json:"message"`
		Data    mcp.PaymentRequiredData `json:"data"`
	} `json:"error"`
}

func toolCall(t *testing.T, name string, payment *x402.PaymentPayload) *http.Request {
	t.Helper()
	params := map[string]any{"name": name, "arguments": map[string]any{"name": "Ada"}}
	if payment != nil {
		params["_meta"] = map[string]any{mcp.MetaKeyPayment: payment}
	}
	body, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 7, "method": "tools/call", "params": params})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	return req
}

func decodeRPC(t *testing.T, rec *httptest.ResponseRecorder) rpcResponse {
	t.Helper()
	var resp rpcResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON-RPC response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func requirement(t *testing.T) x402.PaymentRequirement {
	t.Helper()
	req, err := x402.BuildRequirement(testRoute(), x402.RequestInfo{Scheme: "mcp", Host: "tools", Path: "/generate_card"})
	if err != nil {
		t.Fatal(err)
	}
	return req
}

// toolResponder answers every call with the given JSON-RPC member.
func toolResponder(calls *int, member string, value any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 7, member: value})
	})
}

func newHandler(inner http.Handler, fake *facilitatortest.Fake, cfg *Config) *X402Handler {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Facilitator = fake
	req, _ := x402.BuildRequirement(testRoute(), x402.RequestInfo{Scheme: "mcp", Host: "tools", Path: "/generate_card"})
	lookup := func(name string) (x402.PaymentRequirement, bool) {
		return req, name == "generate_card"
	}
	return NewX402Handler(inner, lookup, cfg)
}

func TestToolResource(t *testing.T) {
	if got := ToolResource("generate_card"); got != "mcp://tools/generate_card" {
		t.Errorf("unexpected resource %q", got)
	}
	req := requirement(t)
	if req.Resource != ToolResource("generate_card") || req.OutputSchema.Input.Type != x402.InputSchemaTypeMCP {
		t.Errorf("unexpected requirement %+v", req)
	}
}

func TestHandler_FreeToolPassesThrough(t *testing.T) {
	var calls int
	fake := &facilitatortest.Fake{}
	h := newHandler(toolResponder(&calls, "result", map[string]any{"content": []any{}}), fake, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, toolCall(t, "ping", nil))

	if calls != 1 || len(fake.VerifyCalls()) != 0 {
		t.Errorf("free tool should pass through unverified, calls=%d verifies=%d", calls, len(fake.VerifyCalls()))
	}
}

func TestHandler_MissingPayment(t *testing.T) {
	var calls int
	var events []httpx402.Event
	h := newHandler(toolResponder(&calls, "result", map[string]any{}), &facilitatortest.Fake{}, &Config{
		Observer: func(e httpx402.Event) { events = append(events, e) },
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, toolCall(t, "generate_card", nil))

	resp := decodeRPC(t, rec)
	if resp.Error == nil || resp.Error.Code != mcp.CodePaymentRequired {
		t.Fatalf("expected 402 JSON-RPC error, got %s", rec.Body.String())
	}
	if resp.Error.Data.X402Version != 1 || len(resp.Error.Data.Accepts) != 1 {
		t.Errorf("unexpected error data %+v", resp.Error.Data)
	}
	if string(resp.ID) != "7" {
		t.Errorf("expected request id echoed, got %s", resp.ID)
	}
	if calls != 0 {
		t.Error("tool must not run without payment")
	}
	if len(events) != 1 {
		t.Fatalf("expected one event, got %+v", events)
	}
	if events[0].Outcome != httpx402.OutcomeOf(x402.FailureProofMissing) || events[0].Route != "mcp://tools/generate_card" {
		t.Errorf("unexpected event %+v", events[0])
	}
	if !mcp.IsPaymentError(events[0].Err) {
		t.Errorf("expected payment error, got %v", events[0].Err)
	}
}

func TestHandler_MalformedPayment(t *testing.T) {
	var calls int
	h := newHandler(toolResponder(&calls, "result", map[string]any{}), &facilitatortest.Fake{}, nil)

	payment := &x402.PaymentPayload{X402Version: 1, Scheme: "exact", Network: "base-sepolia", Payload: map[string]any{"signature": "0x00"}}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, toolCall(t, "generate_card", payment))

	resp := decodeRPC(t, rec)
	if resp.Error == nil || resp.Error.Code != mcp.CodePaymentRequired || calls != 0 {
		t.Fatalf("expected 402 without running the tool, got %s", rec.Body.String())
	}
}

func TestHandler_InvalidVerification(t *testing.T) {
	var calls int
	fake := &facilitatortest.Fake{
		VerifyFunc: func(context.Context, x402.PaymentPayload, x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
			return &facilitator.VerifyResponse{IsValid: false, InvalidReason: "insufficient_funds", Payer: facilitatortest.Payer}, nil
		},
	}
	h := newHandler(toolResponder(&calls, "result", map[string]any{}), fake, nil)

	payment := facilitatortest.EVMPayment(requirement(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, toolCall(t, "generate_card", &payment))

	resp := decodeRPC(t, rec)
	if resp.Error == nil || resp.Error.Data.Error != "insufficient_funds" || resp.Error.Data.Payer != facilitatortest.Payer {
		t.Fatalf("unexpected response %s", rec.Body.String())
	}
	if calls != 0 || len(fake.SettleCalls()) != 0 {
		t.Error("rejected payment must not run or settle")
	}
}

func TestHandler_SuccessInjectsReceipt(t *testing.T) {
	var calls int
	fake := &facilitatortest.Fake{}
	h := newHandler(toolResponder(&calls, "result", map[string]any{
		"content": []any{map[string]any{"type": "text", "text": "https://blob.example/card.png"}},
	}), fake, nil)

	payment := facilitatortest.EVMPayment(requirement(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, toolCall(t, "generate_card", &payment))

	resp := decodeRPC(t, rec)
	if resp.Error != nil || calls != 1 {
		t.Fatalf("unexpected response %s", rec.Body.String())
	}
	meta, _ := resp.Result["_meta"].(map[string]any)
	receipt, _ := meta[mcp.MetaKeyPaymentResponse].(map[string]any)
	if receipt["success"] != true || receipt["transaction"] != facilitatortest.Transaction {
		t.Errorf("unexpected receipt %v", receipt)
	}
	if len(fake.SettleCalls()) != 1 {
		t.Errorf("expected one settlement, got %d", len(fake.SettleCalls()))
	}
}

func TestHandler_ToolErrorSkipsSettlement(t *testing.T) {
	tests := []struct {
		name   string
		member string
		value  any
	}{
		{"json-rpc error", "error", map[string]any{"code": -32603, "message": "boom"}},
		{"isError result", "result", map[string]any{"isError": true, "content": []any{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			fake := &facilitatortest.Fake{}
			h := newHandler(toolResponder(&calls, tt.member, tt.value), fake, nil)

			payment := facilitatortest.EVMPayment(requirement(t))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, toolCall(t, "generate_card", &payment))

			if calls != 1 || len(fake.SettleCalls()) != 0 {
				t.Errorf("expected tool to run without settlement, calls=%d settles=%d", calls, len(fake.SettleCalls()))
			}
		})
	}
}

func TestHandler_SettlementFailure(t *testing.T) {
	var calls int
	var hooked error
	fake := &facilitatortest.Fake{
		SettleFunc: func(context.Context, x402.PaymentPayload, x402.PaymentRequirement) (*x402.SettlementResponse, error) {
			return &x402.SettlementResponse{Success: false, ErrorReason: "nonce_already_used"}, nil
		},
	}
	h := newHandler(toolResponder(&calls, "result", map[string]any{}), fake, &Config{
		OnSettlementFailure: func(_ context.Context, tool string, _ x402.PaymentPayload, err error) {
			if tool == "generate_card" {
				hooked = err
			}
		},
	})

	payment := facilitatortest.EVMPayment(requirement(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, toolCall(t, "generate_card", &payment))

	resp := decodeRPC(t, rec)
	if resp.Error == nil || resp.Error.Code != mcp.CodePaymentRequired || resp.Error.Data.Error != "nonce_already_used" {
		t.Fatalf("unexpected response %s", rec.Body.String())
	}
	if !errors.Is(hooked, x402.ErrSettlementFailed) {
		t.Errorf("expected settlement failure hook, got %v", hooked)
	}
}

func TestHandler_FacilitatorPanics(t *testing.T) {
	tests := []struct {
		name      string
		fake      *facilitatortest.Fake
		wantCalls int
	}{
		{
			name: "verify",
			fake: &facilitatortest.Fake{
				VerifyFunc: func(context.Context, x402.PaymentPayload, x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
					panic("verify exploded")
				},
			},
			wantCalls: 0,
		},
		{
			name: "settle",
			fake: &facilitatortest.Fake{
				SettleFunc: func(context.Context, x402.PaymentPayload, x402.PaymentRequirement) (*x402.SettlementResponse, error) {
					panic("settle exploded")
				},
			},
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			var events []httpx402.Event
			h := newHandler(toolResponder(&calls, "result", map[string]any{}), tt.fake, &Config{
				Observer: func(e httpx402.Event) { events = append(events, e) },
			})

			payment := facilitatortest.EVMPayment(requirement(t))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, toolCall(t, "generate_card", &payment))

			resp := decodeRPC(t, rec)
			if resp.Error == nil || resp.Error.Code != mcp.CodePaymentRequired {
				t.Fatalf("unexpected response %s", rec.Body.String())
			}
			if calls != tt.wantCalls {
				t.Errorf("tool calls = %d, want %d", calls, tt.wantCalls)
			}
			var perr *facilitator.PanicError
			if len(events) != 1 || !errors.As(events[0].Err, &perr) {
				t.Errorf("expected one event carrying the panic, got %+v", events)
			}
		})
	}
}

func TestAddPayableTool_Validation(t *testing.T) {
	s := NewX402Server("cards", "1.0.0", &Config{})
	tool := mcpproto.NewTool("generate_card")
	if err := s.AddPayableTool(tool, nil, testRoute()); !errors.Is(err, x402.ErrInvalidConfiguration) {
		t.Errorf("expected configuration error without facilitator, got %v", err)
	}

	s = NewX402Server("cards", "1.0.0", &Config{Facilitator: &facilitatortest.Fake{}})
	bad := testRoute()
	bad.Network = "nowhere"
	if err := s.AddPayableTool(tool, nil, bad); !errors.Is(err, x402.ErrInvalidConfiguration) {
		t.Errorf("expected configuration error for bad network, got %v", err)
	}
}

func TestX402Server_EndToEnd(t *testing.T) {
	fake := &facilitatortest.Fake{}
	s := NewX402Server("cards", "1.0.0", &Config{Facilitator: fake})

	ran := 0
	err := s.AddPayableTool(
		mcpproto.NewTool("generate_card", mcpproto.WithDescription("Generate a card"), mcpproto.WithString("name")),
		func(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
			ran++
			return mcpproto.NewToolResultText("https://blob.example/card.png"), nil
		},
		testRoute(),
	)
	if err != nil {
		t.Fatalf("AddPayableTool failed: %v", err)
	}
	handler := s.Handler(mcpserver.WithStateLess(true))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, toolCall(t, "generate_card", nil))
	if resp := decodeRPC(t, rec); resp.Error == nil || resp.Error.Code != mcp.CodePaymentRequired {
		t.Fatalf("expected 402, got %s", rec.Body.String())
	}

	req, _ := s.Requirement("generate_card")
	payment := facilitatortest.EVMPayment(req)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, toolCall(t, "generate_card", &payment))

	resp := decodeRPC(t, rec)
	if resp.Error != nil || ran != 1 {
		t.Fatalf("unexpected response %s", rec.Body.String())
	}
	if meta, _ := resp.Result["_meta"].(map[string]any); meta[mcp.MetaKeyPaymentResponse] == nil {
		t.Errorf("expected receipt in result meta, got %v", resp.Result)
	}
}
