package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	dErrors "ali/pkg/domain-errors"
	"ali/pkg/platform/circuit"
)

const defaultClientTimeout = 60 * time.Second

// HTTPClient talks to a completion backend over HTTP JSON. A circuit breaker
// short-circuits calls while the backend is failing.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type ClientOption func(*HTTPClient)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

func WithBreaker(breaker *circuit.Breaker) ClientOption {
	return func(c *HTTPClient) {
		c.breaker = breaker
	}
}

func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *HTTPClient) {
		c.logger = logger
	}
}

func NewHTTPClient(baseURL, apiKey string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultClientTimeout},
		breaker: circuit.New("chat-backend"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Respond posts the conversation to the backend's completion endpoint.
func (c *HTTPClient) Respond(ctx context.Context, req Request) (*Completion, error) {
	if c.breaker.IsOpen() {
		return nil, dErrors.New(dErrors.CodeMessageProcessingError, "completion backend unavailable")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMessageProcessingError, "encode completion request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMessageProcessingError, "build completion request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.recordFailure(ctx, err)
		return nil, dErrors.Wrap(err, dErrors.CodeMessageProcessingError, "call completion backend")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("completion backend returned status %d", resp.StatusCode)
		// 4xx means our request was bad, not that the backend is down.
		if resp.StatusCode >= http.StatusInternalServerError {
			c.recordFailure(ctx, err)
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, dErrors.Wrap(err, dErrors.CodeMessageProcessingError, "completion failed")
	}

	var completion Completion
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		c.recordFailure(ctx, err)
		return nil, dErrors.Wrap(err, dErrors.CodeMessageProcessingError, "decode completion response")
	}

	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "completion backend recovered", "breaker", c.breaker.Name())
	}
	return &completion, nil
}

func (c *HTTPClient) recordFailure(ctx context.Context, err error) {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "completion backend circuit opened",
			"breaker", c.breaker.Name(),
			"error", err,
		)
	}
}
