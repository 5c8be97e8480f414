// Package httpclient is the JSON transport shared by the carrier, wallet and
// shop-statistics clients.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fulfillment-be/internal/apperror"
	"fulfillment-be/internal/logger"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	defaultTimeout       = 15 * time.Second
	defaultMaxRetries    = 3
	defaultRetryInterval = 200 * time.Millisecond
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Service    string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, string(e.Body))
}

func (e *StatusError) Unwrap() error {
	return apperror.ErrExternalUnavailable
}

func (e *StatusError) retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

type Client struct {
	service       string
	baseURL       string
	apiKey        string
	httpClient    *http.Client
	maxRetries    uint64
	retryInterval time.Duration
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = uint64(n)
		}
	}
}

func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) { c.retryInterval = d }
}

func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = rt }
}

// New builds a client for service rooted at baseURL.
func New(service, baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		logger.L().Warn("base URL is empty", zap.String("service", service))
	}

	c := &Client{
		service:       service,
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: defaultTimeout},
		maxRetries:    defaultMaxRetries,
		retryInterval: defaultRetryInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Service() string {
	return c.service
}

// Do sends a JSON request and decodes a 2xx body into out (when non-nil).
// Transport errors, 5xx and 429 are retried with exponential backoff; other
// statuses fail immediately. All failures wrap apperror.ErrExternalUnavailable.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	log := logger.FromCtx(ctx).With(
		zap.String("service", c.service),
		zap.String("method", method),
		zap.String("path", path),
	)

	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			log.Error("failed to marshal request", zap.Error(err))
			return err
		}
	}

	var body []byte
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		body, err = c.send(ctx, method, path, payload)
		if err == nil {
			return nil
		}

		var se *StatusError
		if errors.As(err, &se) {
			log.Error("external service returned non-success status",
				zap.Int("attempt", attempt),
				zap.Int("status", se.StatusCode),
				zap.ByteString("response", se.Body),
			)
			if !se.retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		log.Warn("external request failed", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}

	if err := backoff.Retry(operation, c.backoff(ctx)); err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return err
		}
		return fmt.Errorf("%s %s %s: %w: %w", c.service, method, path, apperror.ErrExternalUnavailable, err)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		log.Error("failed to decode response", zap.Error(err), zap.ByteString("response", body))
		return fmt.Errorf("%s: decode response: %w: %w", c.service, apperror.ErrExternalUnavailable, err)
	}
	return nil
}

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if reqID := logger.RequestIDFrom(ctx); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", c.service, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Service: c.service, StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}
