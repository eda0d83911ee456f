// Package blob stores rendered cards, either in Vercel Blob or in a local
// directory served over HTTP.
package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/x402cards/paygate/card"
	"github.com/x402cards/paygate/retry"
)

const (
	DefaultVercelBaseURL = "https://blob.vercel-storage.com"
	DefaultTimeout       = 30 * time.Second

	vercelAPIVersion = "7"
)

// ErrMissingToken is returned by NewVercel without a read-write token.
var ErrMissingToken = errors.New("blob: read-write token is required")

// Vercel stores objects in Vercel Blob with public access and a random suffix.
type Vercel struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Retry      retry.Policy
	Logger     *slog.Logger
}

var _ card.Store = (*Vercel)(nil)

// VercelOption configures a Vercel store.
type VercelOption func(*Vercel)

// WithBaseURL overrides the blob API endpoint.
func WithBaseURL(u string) VercelOption {
	return func(v *Vercel) { v.BaseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(h *http.Client) VercelOption {
	return func(v *Vercel) { v.HTTPClient = h }
}

// WithRetryPolicy sets the retry policy for uploads.
func WithRetryPolicy(p retry.Policy) VercelOption {
	return func(v *Vercel) { v.Retry = p }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) VercelOption {
	return func(v *Vercel) { v.Logger = l }
}

// NewVercel creates a Vercel Blob store authenticated with token.
func NewVercel(token string, opts ...VercelOption) (*Vercel, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	v := &Vercel{
		Token:      token,
		BaseURL:    DefaultVercelBaseURL,
		HTTPClient: &http.Client{},
		Timeout:    DefaultTimeout,
		Retry:      retry.DefaultPolicy,
		Logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

type putResponse struct {
	URL         string `json:"url"`
	DownloadURL string `json:"downloadUrl"`
	Pathname    string `json:"pathname"`
	ContentType string `json:"contentType"`
}

// Put uploads data under name and returns its public URL. The service appends a
// random suffix to name.
func (v *Vercel) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	resp, err := retry.Do(ctx, v.Retry, retry.Transient, func(ctx context.Context) (*putResponse, error) {
		return v.put(ctx, name, data, contentType)
	})
	if err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", errors.New("blob: upload returned no url")
	}
	v.Logger.Debug("blob stored", "pathname", resp.Pathname, "url", resp.URL)
	return resp.URL, nil
}

func (v *Vercel) put(ctx context.Context, name string, data []byte, contentType string) (*putResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, v.Timeout)
	defer cancel()

	segments := strings.Split(strings.TrimLeft(name, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	endpoint := v.BaseURL + "/" + strings.Join(segments, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+v.Token)
	req.Header.Set("X-Api-Version", vercelAPIVersion)
	req.Header.Set("X-Add-Random-Suffix", "1")
	req.Header.Set("X-Content-Type", contentType)

	resp, err := v.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blob request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &retry.StatusError{Service: "blob", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out putResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("blob: failed to decode response: %w", err)
	}
	return &out, nil
}
