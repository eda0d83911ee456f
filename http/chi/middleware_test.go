package chi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/x402cards/paygate"
	"github.com/x402cards/paygate/facilitator/facilitatortest"
	httpx402 "github.com/x402cards/paygate/http"
)

const payTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"

func testConfig(fake *facilitatortest.Fake) *httpx402.Config {
	return &httpx402.Config{
		Route:       x402.RouteConfig{Price: x402.Money("$0.01"), Network: "base-sepolia", PayTo: payTo},
		Facilitator: fake,
	}
}

func TestChiMiddleware_MissingPayment(t *testing.T) {
	r := chi.NewRouter()
	r.With(Middleware(testConfig(&facilitatortest.Fake{}))).Post("/api/generate-image", func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called without payment")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate-image", nil))

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("Expected status %d, got %d", http.StatusPaymentRequired, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", ct)
	}
}

func TestChiMiddleware_OptionsRequestBypass(t *testing.T) {
	fake := &facilitatortest.Fake{}
	r := chi.NewRouter()
	r.With(Middleware(testConfig(fake))).Options("/api/generate-image", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/generate-image", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected preflight to bypass payment, got %d", rec.Code)
	}
	if len(fake.VerifyCalls()) != 0 {
		t.Error("preflight must not be verified")
	}
}

func TestChiMiddleware_PaidRequestSettles(t *testing.T) {
	fake := &facilitatortest.Fake{}
	r := chi.NewRouter()
	r.With(Middleware(testConfig(fake))).Post("/api/generate-image", func(w http.ResponseWriter, r *http.Request) {
		p, _ := httpx402.PaymentFromContext(r.Context())
		w.Write([]byte(p.Payer))
	})

	requirement, err := x402.BuildRequirement(testConfig(fake).Route, x402.RequestInfo{Method: http.MethodPost, Scheme: "http", Host: "example.com", Path: "/api/generate-image"})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/generate-image", nil)
	req.Header.Set(x402.PaymentHeader, facilitatortest.Header(facilitatortest.EVMPayment(requirement)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != facilitatortest.Payer {
		t.Fatalf("Unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if len(fake.SettleCalls()) != 1 || rec.Header().Get(x402.PaymentResponseHeader) == "" {
		t.Error("Expected one settlement with receipt")
	}
}

func TestValidateRegistry(t *testing.T) {
	route := x402.RouteConfig{Price: x402.Money("$0.01"), Network: "base-sepolia"}
	reg, err := httpx402.NewRegistry(payTo, httpx402.RouteTable{
		"POST /api/generate-image": route,
		"GET /api/cards/{id}":      route,
	})
	if err != nil {
		t.Fatal(err)
	}

	r := chi.NewRouter()
	r.Post("/api/generate-image", func(http.ResponseWriter, *http.Request) {})
	if err := ValidateRegistry(r, reg); err == nil || !strings.Contains(err.Error(), "GET /api/cards/{id}") {
		t.Errorf("Expected missing route error, got %v", err)
	}

	r.Get("/api/cards/{id}", func(http.ResponseWriter, *http.Request) {})
	if err := ValidateRegistry(r, reg); err != nil {
		t.Errorf("Expected registry to validate, got %v", err)
	}
}
