package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/x402cards/paygate"
	"github.com/x402cards/paygate/encoding"
	"github.com/x402cards/paygate/facilitator/facilitatortest"
)

// mockSigner implements x402.Signer for testing.
type mockSigner struct {
	network   string
	priority  int
	maxAmount *big.Int
	signError error

	mu    sync.Mutex
	signs int
}

func (m *mockSigner) Network() string { return m.network }
func (m *mockSigner) Scheme() string  { return "exact" }
func (m *mockSigner) CanSign(req *x402.PaymentRequirement) bool {
	return req.Network == m.network && req.Scheme == "exact"
}
func (m *mockSigner) GetPriority() int              { return m.priority }
func (m *mockSigner) GetTokens() []x402.TokenConfig { return nil }
func (m *mockSigner) GetMaxAmount() *big.Int        { return m.maxAmount }

func (m *mockSigner) Sign(req *x402.PaymentRequirement) (*x402.PaymentPayload, error) {
	m.mu.Lock()
	m.signs++
	m.mu.Unlock()
	if m.signError != nil {
		return nil, m.signError
	}
	p := facilitatortest.EVMPayment(*req)
	return &p, nil
}

func (m *mockSigner) signCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signs
}

// paidServer serves a gated echo handler backed by an in-memory facilitator.
func paidServer(t *testing.T, fake *facilitatortest.Fake) *httptest.Server {
	t.Helper()
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		w.Write(b)
	})
	mux := http.NewServeMux()
	mux.Handle("/api/generate-image", WithPayment(echo, &Config{Route: testRoute(), Facilitator: fake}))
	mux.HandleFunc("/free", func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, "free") })
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		opts    []ClientOption
		wantErr bool
	}{
		{"default client", nil, false},
		{"custom HTTP client", []ClientOption{WithHTTPClient(&http.Client{Timeout: 30 * time.Second})}, false},
		{"nil HTTP client", []ClientOption{WithHTTPClient(nil)}, true},
		{"with signer", []ClientOption{WithSigner(&mockSigner{network: "base-sepolia"})}, false},
		{"nil signer", []ClientOption{WithSigner(nil)}, true},
		{"unknown callback", []ClientOption{WithPaymentCallback("bogus", func(x402.PaymentEvent) {})}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if _, ok := client.Transport.(*X402Transport); !ok {
				t.Errorf("Expected X402Transport, got %T", client.Transport)
			}
		})
	}
}

func TestClient_WithMultipleSigners(t *testing.T) {
	client, err := NewClient(
		WithSigner(&mockSigner{network: "base"}),
		WithSigner(&mockSigner{network: "base-sepolia"}),
	)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(client.Transport.(*X402Transport).Signers); got != 2 {
		t.Errorf("Expected 2 signers, got %d", got)
	}
}

func TestRoundTrip_NonPaymentRequest(t *testing.T) {
	server := paidServer(t, &facilitatortest.Fake{})
	signer := &mockSigner{network: "base-sepolia"}
	client, _ := NewClient(WithSigner(signer))

	resp, err := client.Get(server.URL + "/free")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK || string(body) != "free" {
		t.Errorf("Unexpected response %d %q", resp.StatusCode, body)
	}
	if signer.signCount() != 0 {
		t.Error("free requests must not be signed")
	}
}

func TestRoundTrip_PaysAndReplaysBody(t *testing.T) {
	fake := &facilitatortest.Fake{}
	server := paidServer(t, fake)

	var events []x402.PaymentEvent
	record := func(e x402.PaymentEvent) { events = append(events, e) }
	signer := &mockSigner{network: "base-sepolia"}
	client, err := NewClient(
		WithSigner(signer),
		WithPaymentCallback(x402.PaymentEventAttempt, record),
		WithPaymentCallback(x402.PaymentEventSuccess, record),
	)
	if err != nil {
		t.Fatal(err)
	}

	// An io.Reader without GetBody forces the transport to buffer.
	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/generate-image", io.MultiReader(strings.NewReader("hello")))
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK || string(body) != "hello" {
		t.Fatalf("Unexpected response %d %q", resp.StatusCode, body)
	}
	if signer.signCount() != 1 {
		t.Errorf("Expected one signature, got %d", signer.signCount())
	}

	settlement := GetSettlement(resp)
	if settlement == nil || settlement.Transaction != facilitatortest.Transaction {
		t.Errorf("Unexpected settlement %+v", settlement)
	}

	if len(events) != 2 || events[0].Type != x402.PaymentEventAttempt || events[1].Type != x402.PaymentEventSuccess {
		t.Fatalf("Unexpected events %+v", events)
	}
	if events[1].Amount != "10000" || events[1].Recipient != testPayTo || events[1].Transaction != facilitatortest.Transaction {
		t.Errorf("Unexpected success event %+v", events[1])
	}
}

func TestRoundTrip_NoValidSigner(t *testing.T) {
	server := paidServer(t, &facilitatortest.Fake{})

	var failure *x402.PaymentEvent
	client, _ := NewClient(
		WithSigner(&mockSigner{network: "solana"}),
		WithPaymentCallback(x402.PaymentEventFailure, func(e x402.PaymentEvent) { failure = &e }),
	)

	_, err := client.Post(server.URL+"/api/generate-image", "text/plain", strings.NewReader("x"))
	if !errors.Is(err, x402.ErrNoValidSigner) {
		t.Fatalf("Expected ErrNoValidSigner, got %v", err)
	}
	var pe *x402.PaymentError
	if !errors.As(err, &pe) || pe.Code != x402.ErrCodeNoValidSigner {
		t.Errorf("Expected PaymentError with code, got %v", err)
	}
	if failure == nil {
		t.Error("Expected failure callback")
	}
}

func TestRoundTrip_MaxAmountFiltering(t *testing.T) {
	server := paidServer(t, &facilitatortest.Fake{})
	cheap := &mockSigner{network: "base-sepolia", priority: 1, maxAmount: big.NewInt(100)}
	rich := &mockSigner{network: "base-sepolia", priority: 2, maxAmount: big.NewInt(1_000_000)}
	client, _ := NewClient(WithSigner(cheap), WithSigner(rich))

	resp, err := client.Post(server.URL+"/api/generate-image", "text/plain", strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if cheap.signCount() != 0 || rich.signCount() != 1 {
		t.Errorf("Expected the signer within budget to sign, got cheap=%d rich=%d", cheap.signCount(), rich.signCount())
	}
}

func TestRoundTrip_SignerPriority(t *testing.T) {
	server := paidServer(t, &facilitatortest.Fake{})
	second := &mockSigner{network: "base-sepolia", priority: 2}
	first := &mockSigner{network: "base-sepolia", priority: 1}
	client, _ := NewClient(WithSigner(second), WithSigner(first))

	resp, err := client.Post(server.URL+"/api/generate-image", "text/plain", strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if first.signCount() != 1 || second.signCount() != 0 {
		t.Errorf("Expected priority 1 to sign, got first=%d second=%d", first.signCount(), second.signCount())
	}
}

func TestRoundTrip_RejectedPaymentReturns402(t *testing.T) {
	fake := &facilitatortest.Fake{
		SettleFunc: func(context.Context, x402.PaymentPayload, x402.PaymentRequirement) (*x402.SettlementResponse, error) {
			return &x402.SettlementResponse{Success: false, ErrorReason: "insufficient_funds"}, nil
		},
	}
	server := paidServer(t, fake)

	var failure *x402.PaymentEvent
	client, _ := NewClient(
		WithSigner(&mockSigner{network: "base-sepolia"}),
		WithPaymentCallback(x402.PaymentEventFailure, func(e x402.PaymentEvent) { failure = &e }),
	)

	resp, err := client.Post(server.URL+"/api/generate-image", "text/plain", strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("Expected 402 to surface, got %d", resp.StatusCode)
	}
	if failure == nil || !errors.Is(failure.Error, x402.ErrPaymentRequired) {
		t.Errorf("Expected failure event, got %+v", failure)
	}
}

func TestParsePaymentRequirements(t *testing.T) {
	valid := expectedRequirement(t, testRoute(), http.MethodPost, "/x")
	invalid := valid
	invalid.Extra = nil

	tests := []struct {
		name    string
		body    any
		want    int
		wantErr bool
	}{
		{"valid", x402.PaymentRequirementsResponse{X402Version: 1, Accepts: []x402.PaymentRequirement{valid}}, 1, false},
		{"drops unsignable", x402.PaymentRequirementsResponse{X402Version: 1, Accepts: []x402.PaymentRequirement{invalid, valid}}, 1, false},
		{"only unsignable", x402.PaymentRequirementsResponse{X402Version: 1, Accepts: []x402.PaymentRequirement{invalid}}, 0, true},
		{"empty", x402.PaymentRequirementsResponse{X402Version: 1}, 0, true},
		{"not json", "<html>", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var data []byte
			if s, ok := tt.body.(string); ok {
				data = []byte(s)
			} else {
				data, _ = json.Marshal(tt.body)
			}
			resp := &http.Response{Body: io.NopCloser(strings.NewReader(string(data)))}
			got, err := parsePaymentRequirements(resp)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("Expected %d requirements, got %d", tt.want, len(got))
			}
		})
	}
}

func TestGetSettlement(t *testing.T) {
	header, _ := encoding.EncodeSettlement(x402.SettlementResponse{Success: true, Transaction: "0xabc", Network: "base"})

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"no header", "", false},
		{"invalid base64", "!!!", false},
		{"valid", header, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if tt.header != "" {
				resp.Header.Set(x402.PaymentResponseHeader, tt.header)
			}
			if got := GetSettlement(resp); (got != nil) != tt.want {
				t.Errorf("GetSettlement() = %+v, want present=%v", got, tt.want)
			}
		})
	}
}
