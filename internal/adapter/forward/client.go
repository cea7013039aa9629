// Package forward implements the dispatch port over HTTP: it POSTs JSON
// payloads from the classifier to the router and from the router to the
// workflow handlers.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Strob0t/mailflow/internal/adapter/otel"
	"github.com/Strob0t/mailflow/internal/logger"
	"github.com/Strob0t/mailflow/internal/middleware"
	"github.com/Strob0t/mailflow/internal/port/dispatch"
	"github.com/Strob0t/mailflow/internal/resilience"
)

const (
	maxResponseBytes = 1 << 20
	maxErrorBody     = 512
)

// Client posts JSON and treats anything but a 2xx answer as a failure.
type Client struct {
	httpClient *http.Client
	breakers   *resilience.Set
}

// NewClient creates a forwarding client whose calls are bounded by timeout.
// Outbound requests carry trace context through the otel transport.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otel.NewTransport(http.DefaultTransport),
		},
	}
}

// SetBreakers attaches one circuit breaker per target URL. A rejected call
// is reported like any other failed delivery.
func (c *Client) SetBreakers(s *resilience.Set) {
	c.breakers = s
}

// PostJSON marshals body, POSTs it to url and returns the response body.
// A body that is not JSON is returned as a JSON string.
func (c *Client) PostJSON(ctx context.Context, url string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var result json.RawMessage
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if id := logger.RequestID(ctx); id != "" {
			req.Header.Set(middleware.HeaderRequestID, id)
		}

		//nolint:gosec // G107: target URLs come from startup configuration
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("post %s: %w", url, err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("read response from %s: %w", url, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &dispatch.StatusError{URL: url, Status: resp.StatusCode, Body: errorBody(data)}
		}

		result = asJSON(data)
		return nil
	}

	if err := c.breakers.Do(url, call); err != nil {
		return nil, err
	}
	return result, nil
}

func asJSON(data []byte) json.RawMessage {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	if json.Valid(data) {
		return json.RawMessage(data)
	}
	quoted, _ := json.Marshal(string(data))
	return quoted
}

func errorBody(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}

var _ dispatch.Poster = (*Client)(nil)
