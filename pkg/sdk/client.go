// Package chatdex is the client SDK for the chatdex question-answering
// API: one-shot queries, chunked answer streams, and stream cancellation.
package chatdex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	httpClient *http.Client
	topK       int
}

// WithHTTPClient sets a custom HTTP client. The default client has a
// 30 second timeout, which is unsuitable for long streams.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *clientConfig) {
		c.httpClient = hc
	})
}

// WithTopK sets the candidate count sent with every query. Zero keeps
// the server default.
func WithTopK(k int) Option {
	return optionFunc(func(c *clientConfig) {
		c.topK = k
	})
}

// Client is the chatdex SDK entry point.
type Client struct {
	baseURL string
	httpc   *http.Client
	topK    int
}

// New creates a chatdex Client for the given base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("chatdex: base URL required")
	}

	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.topK < 0 {
		return nil, fmt.Errorf("chatdex: top_k must be positive, got %d", cfg.topK)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   cfg.httpClient,
		topK:    cfg.topK,
	}, nil
}

// Candidate is a single retrieval hit.
type Candidate struct {
	Index    int     `json:"index"`
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// QueryResult is the server's answer to a one-shot query.
type QueryResult struct {
	Answer     string      `json:"answer"`
	RagMatch   *string     `json:"rag_match"`
	RagScore   float64     `json:"rag_score"`
	Candidates []Candidate `json:"candidates"`
}

// HealthReport mirrors the server health response.
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatdex: API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

type queryPayload struct {
	Message   string `json:"message"`
	TopK      *int   `json:"top_k,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Query asks a one-shot question and returns the resolved answer.
func (c *Client) Query(ctx context.Context, message string) (QueryResult, error) {
	var result QueryResult
	if err := c.postJSON(ctx, "/api/llm", c.payload(message, ""), &result); err != nil {
		return QueryResult{}, err
	}
	return result, nil
}

// Cancel requests cancellation of an active stream. Returns true when
// the server accepted the cancellation, false when the stream was
// unknown or already finished.
func (c *Client) Cancel(ctx context.Context, requestID string) (bool, error) {
	if requestID == "" {
		return false, fmt.Errorf("chatdex: request ID required")
	}

	var resp struct {
		Accepted bool `json:"accepted"`
	}
	payload := map[string]string{"request_id": requestID}
	if err := c.postJSON(ctx, "/api/llm/cancel", payload, &resp); err != nil {
		return false, err
	}
	return resp.Accepted, nil
}

// Health fetches the server health report. A degraded server returns
// the report without error.
func (c *Client) Health(ctx context.Context) (HealthReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return HealthReport{}, fmt.Errorf("chatdex: build request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return HealthReport{}, fmt.Errorf("chatdex: health request: %w", err)
	}
	defer resp.Body.Close()

	var report HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return HealthReport{}, fmt.Errorf("chatdex: decode health report: %w", err)
	}
	return report, nil
}

func (c *Client) payload(message, requestID string) queryPayload {
	p := queryPayload{Message: message, RequestID: requestID}
	if c.topK > 0 {
		k := c.topK
		p.TopK = &k
	}
	return p
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("chatdex: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chatdex: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("chatdex: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("chatdex: decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = "unknown"
		apiErr.Message = resp.Status
	}
	return apiErr
}
