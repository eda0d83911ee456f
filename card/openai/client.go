// Package openai analyzes card photos with the OpenAI chat completions API using
// a strict JSON schema response format.
package openai

import (
	"bytes"
	"context"
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
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-5-mini"
	DefaultTimeout = 60 * time.Second
)

const prompt = "Imagine the person in this photo as a trading card creature. " +
	"Pick the element type that suits their appearance, clothing, background and overall vibe, " +
	"then invent a short catchy special ability name (2-4 words) and a playful description of it " +
	"in at most 200 characters."

// ErrEmptyResponse is returned when the model produced no usable answer.
var ErrEmptyResponse = errors.New("openai: empty response")

// Client implements card.Analyzer.
type Client struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
	Retry      retry.Policy
	Logger     *slog.Logger
}

var _ card.Analyzer = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.BaseURL = strings.TrimRight(u, "/") }
}

// WithModel sets the model name.
func WithModel(m string) Option {
	return func(c *Client) { c.Model = m }
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

// NewClient creates an analyzer authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		APIKey:     apiKey,
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

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type completionRequest struct {
	Model          string         `json:"model"`
	Messages       []message      `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
}

// analysisSchema constrains the answer to a card.Analysis with a known type.
func analysisSchema() map[string]any {
	types := make([]string, len(card.Types))
	for i, t := range card.Types {
		types[i] = string(t)
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"type": map[string]any{
				"type":        "string",
				"enum":        types,
				"description": "Element type matching the person's look and vibe",
			},
			"specialAbility": map[string]any{
				"type":        "string",
				"description": "Short catchy ability name, 2-4 words",
			},
			"specialAbilityDescription": map[string]any{
				"type":        "string",
				"description": "Playful description of the ability, at most 200 characters",
			},
		},
		"required":             []string{"type", "specialAbility", "specialAbilityDescription"},
		"additionalProperties": false,
	}
}

// Analyze asks the model for the card type and ability of image.
func (c *Client) Analyze(ctx context.Context, image []byte) (card.Analysis, error) {
	body, err := json.Marshal(completionRequest{
		Model: c.Model,
		Messages: []message{{
			Role: "user",
			Content: []contentPart{
				{Type: "image_url", ImageURL: &imageURL{URL: card.DataURI(image)}},
				{Type: "text", Text: prompt},
			},
		}},
		ResponseFormat: responseFormat{
			Type:       "json_schema",
			JSONSchema: jsonSchema{Name: "card_analysis", Strict: true, Schema: analysisSchema()},
		},
	})
	if err != nil {
		return card.Analysis{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := retry.Do(ctx, c.Retry, retry.Transient, func(ctx context.Context) (*completionResponse, error) {
		return c.complete(ctx, body)
	})
	if err != nil {
		return card.Analysis{}, err
	}

	if len(resp.Choices) == 0 {
		return card.Analysis{}, ErrEmptyResponse
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return card.Analysis{}, fmt.Errorf("openai: model refused: %s", msg.Refusal)
	}
	if msg.Content == "" {
		return card.Analysis{}, ErrEmptyResponse
	}

	var analysis card.Analysis
	if err := json.Unmarshal([]byte(msg.Content), &analysis); err != nil {
		return card.Analysis{}, fmt.Errorf("openai: failed to decode analysis: %w", err)
	}
	if _, err := card.ParseType(string(analysis.Type)); err != nil {
		return card.Analysis{}, fmt.Errorf("openai: %w", err)
	}

	c.Logger.Debug("image analyzed", "model", c.Model, "type", analysis.Type)
	return analysis, nil
}

func (c *Client) complete(ctx context.Context, body []byte) (*completionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &retry.StatusError{Service: "openai", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var out completionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("openai: failed to decode response: %w", err)
	}
	return &out, nil
}
