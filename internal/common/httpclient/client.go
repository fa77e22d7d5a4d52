// Package httpclient provides the HTTP client with retry logic used for every
// upstream registry call.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/obentoo/upkeep/internal/common/logger"
)

// Error variables for HTTP client errors
var (
	// ErrMaxRetriesExceeded is returned when all retry attempts have failed
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	// ErrRequestTimeout is returned when a request times out
	ErrRequestTimeout = errors.New("request timeout")
	// ErrUnexpectedStatus is returned for non-2xx responses
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrDecode is returned when a response body cannot be decoded
	ErrDecode = errors.New("undecodable response body")
)

// envVarPattern matches ${VAR_NAME} syntax for environment variable substitution
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// StatusError carries the status code of a non-2xx response
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s returned %d", ErrUnexpectedStatus, e.URL, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 3)
	MaxRetries int
	// BaseDelay is the initial delay before first retry (default: 1s)
	BaseDelay time.Duration
	// MaxDelay is the maximum delay between retries (default: 8s)
	MaxDelay time.Duration
	// Timeout is the timeout for each individual metadata request (default: 30s)
	Timeout time.Duration
	// DownloadTimeout is the timeout for each artifact download (default: 120s)
	DownloadTimeout time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
// Uses exponential backoff with delays of 1s, 2s, 4s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        8 * time.Second,
		Timeout:         30 * time.Second,
		DownloadTimeout: 120 * time.Second,
	}
}

// RetryableClient wraps an HTTP client with retry logic.
// It implements exponential backoff for failed requests and is not safe
// for concurrent use.
type RetryableClient struct {
	client *http.Client
	config RetryConfig
	// delayFunc allows overriding the delay function for testing
	delayFunc func(time.Duration)
	// recordedDelays stores delays for testing purposes
	recordedDelays []time.Duration
	// defaultHeaders are headers applied to all requests
	defaultHeaders map[string]string
}

// New creates a new HTTP client with the default retry configuration.
func New() *RetryableClient {
	return NewWithConfig(DefaultRetryConfig())
}

// NewWithConfig creates a new HTTP client with custom retry configuration.
func NewWithConfig(config RetryConfig) *RetryableClient {
	return &RetryableClient{
		client:    &http.Client{},
		config:    config,
		delayFunc: time.Sleep,
	}
}

// SetHTTPClient sets a custom underlying HTTP client (useful for testing).
func (c *RetryableClient) SetHTTPClient(client *http.Client) {
	c.client = client
}

// SetDelayFunc sets a custom delay function (useful for testing).
// The function receives the delay duration that would normally be slept.
func (c *RetryableClient) SetDelayFunc(fn func(time.Duration)) {
	c.delayFunc = fn
}

// RecordedDelays returns the backoff delays applied so far.
func (c *RetryableClient) RecordedDelays() []time.Duration {
	return c.recordedDelays
}

// SetDefaultHeaders sets default headers that will be applied to all requests.
// These headers are applied before any request-specific headers.
func (c *RetryableClient) SetDefaultHeaders(headers map[string]string) {
	c.defaultHeaders = headers
}

// FetchJSON GETs url and decodes the body into out, which must be a non-nil
// pointer. Transport errors, any non-2xx status and undecodable bodies are
// all retried. Each attempt decodes into a fresh value, and out is only
// assigned once a body decodes completely.
func (c *RetryableClient) FetchJSON(ctx context.Context, url string, headers map[string]string, out interface{}) error {
	target := reflect.ValueOf(out)
	if target.Kind() != reflect.Ptr || target.IsNil() {
		return fmt.Errorf("%w: FetchJSON needs a non-nil pointer, got %T", ErrDecode, out)
	}

	return c.Stream(ctx, url, headers, c.config.Timeout, func(body io.Reader) error {
		fresh := reflect.New(target.Elem().Type())
		if err := json.NewDecoder(body).Decode(fresh.Interface()); err != nil {
			return fmt.Errorf("%w: %v", ErrDecode, err)
		}
		target.Elem().Set(fresh.Elem())
		return nil
	})
}

// FetchText GETs url and returns the body with surrounding whitespace trimmed.
func (c *RetryableClient) FetchText(ctx context.Context, url string, headers map[string]string) (string, error) {
	var text string
	err := c.Stream(ctx, url, headers, c.config.Timeout, func(body io.Reader) error {
		data, err := io.ReadAll(body)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(string(data))
		return nil
	})
	return text, err
}

// Download streams url into consume using the download timeout. consume is
// called afresh on every attempt and must not keep state between calls.
func (c *RetryableClient) Download(ctx context.Context, url string, consume func(io.Reader) error) error {
	return c.Stream(ctx, url, nil, c.config.DownloadTimeout, consume)
}

// Stream performs a retried GET, handing each successful body to consume.
// Each attempt gets its own timeout. An error from consume counts as a
// failed attempt.
func (c *RetryableClient) Stream(ctx context.Context, url string, headers map[string]string, timeout time.Duration, consume func(io.Reader) error) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt > 0 {
			c.backoff(attempt, url, lastErr)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		lastErr = c.attempt(ctx, url, headers, timeout, consume)
		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, lastErr)
}

func (c *RetryableClient) attempt(ctx context.Context, url string, headers map[string]string, timeout time.Duration, consume func(io.Reader) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req, headers)

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeoutError(err) {
			return fmt.Errorf("%w: %v", ErrRequestTimeout, err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	return consume(resp.Body)
}

func (c *RetryableClient) backoff(attempt int, url string, cause error) {
	delay := c.calculateDelay(attempt)
	logger.Debug("retrying %s in %s (attempt %d/%d): %v", url, delay, attempt, c.config.MaxRetries, cause)
	c.recordedDelays = append(c.recordedDelays, delay)
	c.delayFunc(delay)
}

// calculateDelay calculates the delay for a given retry attempt.
// Uses exponential backoff: delay = baseDelay * 2^(attempt-1), capped at MaxDelay
func (c *RetryableClient) calculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	multiplier := 1 << (attempt - 1)
	delay := c.config.BaseDelay * time.Duration(multiplier)

	if c.config.MaxDelay > 0 && delay > c.config.MaxDelay {
		delay = c.config.MaxDelay
	}

	return delay
}

// isTimeoutError checks if an error is a timeout error.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	type timeoutError interface {
		Timeout() bool
	}
	var te timeoutError
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}

// applyHeaders applies default headers, then the request-specific ones.
// All header values are processed for environment variable substitution.
func (c *RetryableClient) applyHeaders(req *http.Request, headers map[string]string) {
	for key, value := range c.defaultHeaders {
		req.Header.Set(key, SubstituteEnvVars(value))
	}
	for key, value := range headers {
		req.Header.Set(key, SubstituteEnvVars(value))
	}
}

// SubstituteEnvVars replaces ${VAR_NAME} patterns in a string with
// the corresponding environment variable values.
// If an environment variable is not set, the pattern is replaced with an empty string.
func SubstituteEnvVars(value string) string {
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}
