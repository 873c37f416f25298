// Package gemini is a minimal client for Gemini grounded generation via the
// Generative Language API, exposing grounding chunks for citation extraction.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/promptwatch/internal/resilience"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.5-flash"
)

// Client performs grounded content generation against the Gemini API.
type Client interface {
	GenerateGrounded(ctx context.Context, prompt string) (*GenerateResponse, error)
	// ResolveRedirect follows the vertexaisearch redirect chain to the real
	// destination page. Returns the input unchanged if resolution fails.
	ResolveRedirect(ctx context.Context, uri string) string
}

// GenerateRequest is the request body for :generateContent.
type GenerateRequest struct {
	Contents []Content       `json:"contents"`
	Tools    []Tool          `json:"tools,omitempty"`
	Config   *ThinkingConfig `json:"generationConfig,omitempty"`
}

// Content is one turn of the conversation.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is a content fragment.
type Part struct {
	Text string `json:"text,omitempty"`
}

// Tool declares a capability available to the model.
type Tool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

// ThinkingConfig bounds the model's thinking budget.
type ThinkingConfig struct {
	ThinkingConfig *ThinkingBudget `json:"thinkingConfig,omitempty"`
}

// ThinkingBudget holds the token budget for thinking.
type ThinkingBudget struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

// GenerateResponse is the response from :generateContent.
type GenerateResponse struct {
	Candidates    []Candidate   `json:"candidates"`
	UsageMetadata UsageMetadata `json:"usageMetadata"`
}

// Candidate is one generated answer with its grounding metadata.
type Candidate struct {
	Content           Content            `json:"content"`
	GroundingMetadata *GroundingMetadata `json:"groundingMetadata,omitempty"`
}

// Text concatenates the candidate's text parts.
func (c *Candidate) Text() string {
	var out string
	for _, p := range c.Content.Parts {
		out += p.Text
	}
	return out
}

// GroundingMetadata carries the web sources the answer was grounded on, in
// citation order.
type GroundingMetadata struct {
	GroundingChunks []GroundingChunk `json:"groundingChunks"`
}

// GroundingChunk is one cited source.
type GroundingChunk struct {
	Web *WebSource `json:"web,omitempty"`
}

// WebSource identifies a cited web page. URI is a vertexaisearch redirect,
// not the destination page.
type WebSource struct {
	URI    string `json:"uri"`
	Title  string `json:"title"`
	Domain string `json:"domain"`
}

// UsageMetadata reports token consumption.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *httpClient) {
		c.model = model
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Gemini API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

const thinkingBudget = 2048

func (c *httpClient) GenerateGrounded(ctx context.Context, prompt string) (*GenerateResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "gemini: rate limit wait")
		}
	}

	req := GenerateRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: prompt}}}},
		Tools:    []Tool{{GoogleSearch: &struct{}{}}},
		Config:   &ThinkingConfig{ThinkingConfig: &ThinkingBudget{ThinkingBudget: thinkingBudget}},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: marshal request")
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("gemini: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var result GenerateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "gemini: unmarshal response")
	}

	return &result, nil
}

const redirectAttempts = 3

func (c *httpClient) ResolveRedirect(ctx context.Context, uri string) string {
	for attempt := 0; attempt < redirectAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, uri, nil)
		if err != nil {
			return uri
		}
		resp, err := c.http.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		return resp.Request.URL.String()
	}
	return uri
}
