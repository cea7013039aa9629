// Package litellm implements the classification capability on top of an
// OpenAI-compatible chat completions endpoint, typically a LiteLLM proxy.
package litellm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Strob0t/mailflow/internal/resilience"
)

// maxResponseBytes bounds how much of a completion response is read.
const maxResponseBytes = 1 << 20

// Options configures a Client.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client talks to the chat completions API.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
	breaker     *resilience.Breaker
	limiter     *resilience.Limiter
}

// NewClient creates a new completions client.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		model:       opts.Model,
		temperature: opts.Temperature,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// SetLimiter bounds the number of concurrent completion calls.
func (c *Client) SetLimiter(l *resilience.Limiter) {
	c.limiter = l
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Health checks if the completions endpoint is reachable. It bypasses the
// breaker and the limiter so readiness probes never affect classification.
func (c *Client) Health(ctx context.Context) (bool, error) {
	_, err := c.send(ctx, http.MethodGet, "/health", nil)
	return err == nil, err
}

// doRequest sends a request through the limiter and the breaker.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		data, err := c.send(ctx, method, path, body)
		if err != nil {
			return err
		}
		result = data
		return nil
	}

	guarded := call
	if c.breaker != nil {
		guarded = func() error { return c.breaker.Execute(call) }
	}
	if err := c.limiter.Run(ctx, guarded); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("completions API error %d: %s", resp.StatusCode, truncate(string(data), 256))
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
