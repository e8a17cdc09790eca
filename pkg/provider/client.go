// Package provider implements the HTTP transports to external inference APIs.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/agroguard/agroguard/pkg/config"
	"github.com/agroguard/agroguard/pkg/prompt"
)

const (
	defaultTimeout = 20 * time.Second
	maxBodySize    = 4 << 20
)

// Call is one model invocation.
type Call struct {
	// Model overrides the provider's default model when set.
	Model  string
	Prompt prompt.Prompt
}

// Response is a successful (2xx) provider exchange.
type Response struct {
	Provider   string
	Model      string
	StatusCode int
	Body       []byte
	Attempts   int
	Latency    time.Duration
}

// Client calls a model. Implementations are stateless and safe for
// concurrent use.
type Client interface {
	Name() string
	Call(ctx context.Context, call Call) (*Response, error)
}

// HTTPClient is a Client for a generative-content or chat-completions API.
type HTTPClient struct {
	cfg    config.ProviderConfig
	retry  config.RetryConfig
	http   *http.Client
	logger *zap.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.http = hc }
}

// WithLogger sets the logger used for retry notices.
func WithLogger(l *zap.Logger) Option {
	return func(c *HTTPClient) { c.logger = l }
}

// New creates a client for the given provider.
func New(cfg config.ProviderConfig, retry config.RetryConfig, opts ...Option) (*HTTPClient, error) {
	if cfg.Type != config.ProviderGenerative && cfg.Type != config.ProviderChat {
		return nil, fmt.Errorf("provider %s: unknown type %q", cfg.Name, cfg.Type)
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid provider URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	c := &HTTPClient{cfg: cfg, retry: retry, http: http.DefaultClient, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewAll creates a client for every configured provider, keyed by name.
func NewAll(cfg *config.Config, opts ...Option) (map[string]Client, error) {
	clients := make(map[string]Client, len(cfg.Providers))
	for _, p := range cfg.Providers {
		c, err := New(p, cfg.Retry, opts...)
		if err != nil {
			return nil, err
		}
		clients[p.Name] = c
	}
	return clients, nil
}

// Name returns the configured provider name.
func (c *HTTPClient) Name() string { return c.cfg.Name }

// Type returns the provider type.
func (c *HTTPClient) Type() string { return c.cfg.Type }

// Call sends the prompt, retrying retry-worthy failures with exponential
// backoff. Any failure is a *TransportError.
func (c *HTTPClient) Call(ctx context.Context, call Call) (*Response, error) {
	if c.cfg.APIKey == "" {
		return nil, &TransportError{Provider: c.cfg.Name, Cause: CauseCredential, Err: ErrMissingCredential}
	}

	model := call.Model
	if model == "" {
		model = c.cfg.Model
	}

	path, headers, body, err := c.encode(model, call.Prompt)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	start := time.Now()
	attempts := 0
	resp, err := backoff.Retry(ctx, func() (*Response, error) {
		attempts++
		resp, err := c.attempt(ctx, path, headers, body)
		if err != nil {
			var terr *TransportError
			if errors.As(err, &terr) && !terr.Retryable {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return resp, nil
	}, c.retryOptions()...)
	if err != nil {
		var terr *TransportError
		if !errors.As(err, &terr) {
			terr = &TransportError{Provider: c.cfg.Name, Cause: causeOf(err), Err: err}
		}
		terr.Attempts = attempts
		return nil, terr
	}

	resp.Model = model
	resp.Attempts = attempts
	resp.Latency = time.Since(start)
	return resp, nil
}

func (c *HTTPClient) retryOptions() []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	if c.retry.InitialInterval > 0 {
		b.InitialInterval = c.retry.InitialInterval
	}
	if c.retry.MaxInterval > 0 {
		b.MaxInterval = c.retry.MaxInterval
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.retry.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("retrying provider call",
				zap.String("provider", c.cfg.Name),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	}
	if c.retry.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(c.retry.MaxElapsed))
	}
	return opts
}

// attempt performs a single bounded exchange.
func (c *HTTPClient) attempt(ctx context.Context, path string, headers map[string]string, body []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	outcome := "error"
	defer func() {
		upstreamAttempts.WithLabelValues(c.cfg.Name, outcome).Inc()
		upstreamDuration.WithLabelValues(c.cfg.Name, outcome).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Provider: c.cfg.Name, Cause: CauseNetwork, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		outcome = string(causeOf(err))
		return nil, &TransportError{Provider: c.cfg.Name, Cause: causeOf(err), Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		outcome = string(causeOf(err))
		return nil, &TransportError{Provider: c.cfg.Name, Cause: causeOf(err), Retryable: true, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = fmt.Sprintf("%dxx", resp.StatusCode/100)
		return nil, &TransportError{
			Provider:   c.cfg.Name,
			Cause:      CauseStatus,
			StatusCode: resp.StatusCode,
			Body:       respBody,
			Retryable:  retryableStatus(resp.StatusCode),
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	outcome = "ok"
	return &Response{
		Provider:   c.cfg.Name,
		StatusCode: resp.StatusCode,
		Body:       respBody,
	}, nil
}

func causeOf(err error) Cause {
	if errors.Is(err, context.DeadlineExceeded) {
		return CauseTimeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return CauseTimeout
	}
	return CauseNetwork
}

type generateRequest struct {
	Contents         []*genai.Content  `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

func (c *HTTPClient) encode(model string, p prompt.Prompt) (string, map[string]string, []byte, error) {
	if c.cfg.Type == config.ProviderChat {
		req := chatRequest{
			Model:       model,
			Temperature: c.cfg.Temperature,
			MaxTokens:   c.cfg.MaxTokens,
		}
		if p.System != "" {
			req.Messages = append(req.Messages, chatMessage{Role: "system", Content: p.System})
		}
		req.Messages = append(req.Messages, chatMessage{Role: "user", Content: p.User})
		body, err := json.Marshal(req)
		return "/v1/chat/completions", map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}, body, err
	}

	req := generateRequest{
		Contents: []*genai.Content{genai.NewContentFromText(p.Text(), genai.RoleUser)},
	}
	gc := generationConfig{Temperature: c.cfg.Temperature, MaxOutputTokens: c.cfg.MaxTokens}
	if p.JSON {
		gc.ResponseMIMEType = "application/json"
	}
	if gc != (generationConfig{}) {
		req.GenerationConfig = &gc
	}
	body, err := json.Marshal(req)
	path := "/v1beta/models/" + url.PathEscape(model) + ":generateContent"
	return path, map[string]string{"x-goog-api-key": c.cfg.APIKey}, body, err
}
