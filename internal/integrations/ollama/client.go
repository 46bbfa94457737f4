package ollama

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
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultTimeout = 60 * time.Second
)

// generateRequest is the request shape for /api/generate with streaming off.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response *string `json:"response"`
	Done     *bool   `json:"done"`
}

// HTTPStatusError captures non-2xx responses from the inference server.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("ollama: server error: status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// NetworkError is a transport-level failure: refused connection, timeout or
// a response that could not be read.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("ollama: network error calling %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError means the server answered 2xx with a body we could not use.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("ollama: decode response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Client calls the non-streaming generate endpoint of a local Ollama server.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	log        *slog.Logger
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.log = logger
	}
}

// NewClient creates a Client that generates with model. The default HTTP
// client gives every call 60 seconds.
func NewClient(model string, opts ...Option) (*Client, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("ollama: model must not be empty")
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		model:      model,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c, nil
}

func (c *Client) Model() string {
	return c.model
}

func generateURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if strings.HasSuffix(base, "/api") {
		return base + "/generate"
	}
	return base + "/api/generate"
}

// Complete sends prompt in a single request and returns the generated text.
// There are no retries.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}

	url := generateURL(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", &NetworkError{URL: url, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return "", &NetworkError{URL: url, Err: fmt.Errorf("read response body: %w", err)}
	}

	var payload generateResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", &DecodeError{Err: err}
	}
	if payload.Response == nil {
		return "", &DecodeError{Err: errors.New(`missing "response" field`)}
	}
	if payload.Done == nil {
		return "", &DecodeError{Err: errors.New(`missing "done" field`)}
	}

	c.log.Debug("completion received",
		"model", c.model,
		"done", *payload.Done,
		"chars", len(*payload.Response),
		"elapsed", time.Since(started),
	)
	return *payload.Response, nil
}
