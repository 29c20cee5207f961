// Package client is the Go SDK for the PriorArt-Intelligence HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

const Version = "0.1.0"

// OwnerHeader carries the caller identity on every request.
const OwnerHeader = "X-Owner-ID"

type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{}) {}
func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

type Client struct {
	baseURL      string
	httpClient   *http.Client
	ownerID      string
	userAgent    string
	logger       Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	waitTimeout  time.Duration

	analyses     *AnalysesClient
	analysesOnce sync.Once
	alerts       *AlertsClient
	alertsOnce   sync.Once
}

// APIError is a non-2xx response decoded from the server error body.
type APIError struct {
	StatusCode int                     `json:"status_code"`
	Code       string                  `json:"code"`
	Message    string                  `json:"message"`
	Detail     string                  `json:"detail,omitempty"`
	Fields     []errors.FieldViolation `json:"fields,omitempty"`
	RequestID  string                  `json:"request_id"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("priorart: %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	for _, f := range e.Fields {
		msg += fmt.Sprintf("; %s: %s", f.Field, f.Message)
	}
	return msg + " [request_id=" + e.RequestID + "]"
}

func (e *APIError) IsNotFound() bool    { return e.StatusCode == http.StatusNotFound }
func (e *APIError) IsConflict() bool    { return e.StatusCode == http.StatusConflict }
func (e *APIError) IsValidation() bool  { return e.StatusCode == http.StatusBadRequest }
func (e *APIError) IsRateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// NewClient validates baseURL and applies opts. The owner id is optional for
// analyses and required by the alert endpoints.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, invalidConfig("base_url", "is required")
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, invalidConfig("base_url", err.Error())
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, invalidConfig("base_url", "scheme must be http or https")
	}

	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		userAgent:    fmt.Sprintf("priorart-go-sdk/%s", Version),
		logger:       noopLogger{},
		retryMax:     3,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
		waitTimeout:  DefaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func invalidConfig(field, msg string) error {
	return errors.NewValidationError("invalid client configuration",
		[]errors.FieldViolation{{Field: field, Message: msg}})
}

func (c *Client) Analyses() *AnalysesClient {
	c.analysesOnce.Do(func() {
		c.analyses = &AnalysesClient{client: c}
	})
	return c.analyses
}

func (c *Client) Alerts() *AlertsClient {
	c.alertsOnce.Do(func() {
		c.alerts = &AlertsClient{client: c}
	})
	return c.alerts
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	fullURL := c.baseURL + path

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = b
	}

	var (
		lastErr    error
		retryAfter time.Duration
	)
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			backoff := c.calculateBackoff(attempt)
			backoff = max(backoff, retryAfter)
			c.logger.Debugf("retry attempt %d after %v", attempt, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		requestID := uuid.New().String()
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("X-Request-ID", requestID)
		if c.ownerID != "" {
			req.Header.Set(OwnerHeader, c.ownerID)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Errorf("request failed: %v", err)
			lastErr = err
			retryAfter = 0
			continue
		}
		c.logger.Debugf("%s %s %d (%v)", method, path, resp.StatusCode, time.Since(start))

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode >= 400 {
			apiErr := decodeAPIError(resp.StatusCode, requestID, respBody)
			lastErr = apiErr
			if c.shouldRetry(method, resp) {
				retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
				continue
			}
			return apiErr
		}

		if result != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("failed to unmarshal response: %w", err)
			}
		}
		return nil
	}
	return lastErr
}

func decodeAPIError(status int, requestID string, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, RequestID: requestID}
	if len(body) == 0 {
		apiErr.Message = http.StatusText(status)
		return apiErr
	}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	apiErr.StatusCode = status
	apiErr.RequestID = requestID
	return apiErr
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

func (c *Client) patch(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.do(ctx, http.MethodPatch, path, body, result)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// shouldRetry retries 429 and 503 for every method. Other 5xx responses are
// retried for everything but POST.
func (c *Client) shouldRetry(method string, resp *http.Response) bool {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusServiceUnavailable:
		return true
	case resp.StatusCode >= 500:
		return method != http.MethodPost
	}
	return false
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.retryWaitMin * time.Duration(1<<uint(attempt-1))
	if backoff > c.retryWaitMax {
		backoff = c.retryWaitMax
	}
	if backoff < 4 {
		return backoff
	}
	jitter := time.Duration(rand.Int63n(int64(backoff / 4)))
	return backoff + jitter
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
