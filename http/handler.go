package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/x402cards/paygate"
	"github.com/x402cards/paygate/encoding"
)

// sendPaymentRequired writes a 402 body carrying the still-current requirements.
func sendPaymentRequired(w http.ResponseWriter, message string, accepts []x402.PaymentRequirement, payer string) {
	writeJSON(w, http.StatusPaymentRequired, x402.PaymentRequirementsResponse{
		X402Version: x402.X402Version,
		Error:       message,
		Accepts:     accepts,
		Payer:       payer,
	})
}

// sendError writes a plain {error} JSON body.
func sendError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// addPaymentResponseHeader adds the X-PAYMENT-RESPONSE receipt header.
func addPaymentResponseHeader(h http.Header, settlement *x402.SettlementResponse) error {
	receipt := x402.SettlementResponse{
		Success:     true,
		Transaction: settlement.Transaction,
		Network:     settlement.Network,
		Payer:       settlement.Payer,
	}
	value, err := encoding.EncodeSettlement(receipt)
	if err != nil {
		return err
	}
	h.Set(x402.PaymentResponseHeader, value)
	return nil
}

// requestInfo extracts the parts of r a requirement is bound to. The scheme comes
// from TLS, then the first X-Forwarded-Proto value, else http.
func requestInfo(r *http.Request) x402.RequestInfo {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	} else if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	return x402.RequestInfo{
		Method: r.Method,
		Scheme: scheme,
		Host:   r.Host,
		Path:   r.URL.Path,
	}
}

func message(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}
