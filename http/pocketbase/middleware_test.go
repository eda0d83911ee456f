package pocketbase

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/hook"
	"github.com/pocketbase/pocketbase/tools/router"

	"github.com/x402cards/paygate"
	"github.com/x402cards/paygate/facilitator/facilitatortest"
	httpx402 "github.com/x402cards/paygate/http"
)

func testConfig(fake *facilitatortest.Fake) *httpx402.Config {
	return &httpx402.Config{
		Route: x402.RouteConfig{
			Price:   x402.Money("$0.01"),
			Network: "base-sepolia",
			PayTo:   "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		},
		Facilitator: fake,
	}
}

func paidRequest(t *testing.T, config *httpx402.Config) *http.Request {
	t.Helper()
	requirement, err := x402.BuildRequirement(config.Route, x402.RequestInfo{Method: http.MethodPost, Scheme: "http", Host: "example.com", Path: "/api/generate-image"})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/generate-image", strings.NewReader("{}"))
	req.Header.Set(x402.PaymentHeader, facilitatortest.Header(facilitatortest.EVMPayment(requirement)))
	return req
}

// serve runs the middleware followed by handler the way a PocketBase route chain does.
func serve(config *httpx402.Config, req *http.Request, handler func(e *core.RequestEvent) error) (*httptest.ResponseRecorder, error) {
	rec := httptest.NewRecorder()
	e := &core.RequestEvent{}
	e.Request = req
	e.Response = rec

	h := &hook.Hook[*core.RequestEvent]{}
	err := h.Trigger(e, WithPayment(config), handler)
	return rec, err
}

func TestPocketBaseMiddleware_NoPaymentReturns402(t *testing.T) {
	config := testConfig(&facilitatortest.Fake{})
	rec, err := serve(config, httptest.NewRequest(http.MethodPost, "/api/generate-image", nil), func(e *core.RequestEvent) error {
		t.Error("Handler should not be called without payment")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("Expected status %d, got %d", http.StatusPaymentRequired, rec.Code)
	}
}

func TestPocketBaseMiddleware_PaidRequestSettles(t *testing.T) {
	fake := &facilitatortest.Fake{}
	config := testConfig(fake)
	rec, err := serve(config, paidRequest(t, config), func(e *core.RequestEvent) error {
		p, ok := Payment(e)
		if !ok {
			t.Fatal("Expected payment in event store")
		}
		return e.JSON(http.StatusOK, map[string]any{"payer": p.Payer})
	})
	if err != nil {
		t.Fatal(err)
	}

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), facilitatortest.Payer) {
		t.Fatalf("Unexpected response %d %s", rec.Code, rec.Body.String())
	}
	if len(fake.SettleCalls()) != 1 || rec.Header().Get(x402.PaymentResponseHeader) == "" {
		t.Error("Expected one settlement with receipt")
	}
}

func TestPocketBaseMiddleware_HandlerErrorSkipsSettlement(t *testing.T) {
	fake := &facilitatortest.Fake{}
	config := testConfig(fake)
	rec, err := serve(config, paidRequest(t, config), func(e *core.RequestEvent) error {
		return router.NewBadRequestError("image is required", nil)
	})
	if err != nil {
		t.Fatal(err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected handler error status, got %d", rec.Code)
	}
	if len(fake.SettleCalls()) != 0 {
		t.Error("failed handlers must not be settled")
	}
}
