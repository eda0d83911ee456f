// Package fal redraws card photos with a fal.ai image edit model.
package fal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/x402cards/paygate/card"
	"github.com/x402cards/paygate/retry"
)

const (
	DefaultBaseURL = "https://fal.run"
	DefaultModel   = "fal-ai/nano-banana/edit"
	DefaultTimeout = 120 * time.Second

	// maxImageBytes bounds a downloaded result.
	maxImageBytes = 20 << 20
)

// ErrNoImage is returned when the model produced no image.
var ErrNoImage = errors.New("fal: no image returned")

// Client implements card.Artist.
type Client struct {
	Key        string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
	Retry      retry.Policy
	Logger     *slog.Logger
}

var _ card.Artist = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the fal endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.BaseURL = strings.TrimRight(u, "/") }
}

// WithModel sets the model path.
func WithModel(m string) Option {
	return func(c *Client) { c.Model = strings.Trim(m, "/") }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.HTTPClient = h }
}

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.Retry = p }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.Logger = l }
}

// NewClient creates an artist authenticated with key.
func NewClient(key string, opts ...Option) *Client {
	c := &Client{
		Key:        key,
		BaseURL:    DefaultBaseURL,
		Model:      DefaultModel,
		HTTPClient: &http.Client{},
		Timeout:    DefaultTimeout,
		Retry:      retry.DefaultPolicy,
		Logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type editRequest struct {
	Prompt       string   `json:"prompt"`
	ImageURLs    []string `json:"image_urls"`
	NumImages    int      `json:"num_images"`
	AspectRatio  string   `json:"aspect_ratio"`
	OutputFormat string   `json:"output_format"`
}

type editResponse struct {
	Images []struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
	} `json:"images"`
}

// Draw edits image into retro card artwork and downloads the result.
func (c *Client) Draw(ctx context.Context, image []byte, t card.Type) ([]byte, error) {
	body, err := json.Marshal(editRequest{
		Prompt:       fmt.Sprintf("Edit the image to make it retro trading card artwork with a %s-type theme", strings.ToLower(string(t))),
		ImageURLs:    []string{card.DataURI(image)},
		NumImages:    1,
		AspectRatio:  "auto",
		OutputFormat: "jpeg",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := retry.Do(ctx, c.Retry, retry.Transient, func(ctx context.Context) (*editResponse, error) {
		return c.edit(ctx, body)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Images) == 0 || resp.Images[0].URL == "" {
		return nil, ErrNoImage
	}

	url := resp.Images[0].URL
	c.Logger.Debug("artwork generated", "model", c.Model, "type", t)
	if strings.HasPrefix(url, "data:") {
		return decodeDataURI(url)
	}
	return retry.Do(ctx, c.Retry, retry.Transient, func(ctx context.Context) ([]byte, error) {
		return c.download(ctx, url)
	})
}

func (c *Client) edit(ctx context.Context, body []byte) (*editResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/"+c.Model, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+c.Key)

	data, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var out editResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("fal: failed to decode response: %w", err)
	}
	return &out, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fal request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &retry.StatusError{Service: "fal", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

func decodeDataURI(uri string) ([]byte, error) {
	i := strings.Index(uri, ",")
	if i < 0 || !strings.HasSuffix(uri[:i], ";base64") {
		return nil, errors.New("fal: unsupported data URI")
	}
	return base64.StdEncoding.DecodeString(uri[i+1:])
}
