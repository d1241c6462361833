// Package httppost provides the HTTP writer: every chunk is sent as the body
// of one POST request.
package httppost

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/pipeline"
	"github.com/c360/splice/pkg/retry"
)

// Config holds configuration for HTTP writers
type Config struct {
	Headers     map[string]string `json:"headers" yaml:"headers"`
	Timeout     time.Duration     `json:"timeout" yaml:"timeout"`         // Per-request timeout
	RetryCount  int               `json:"retry_count" yaml:"retry_count"` // Extra attempts for transient failures
	ContentType string            `json:"content_type" yaml:"content_type"`
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.Timeout <= 0 || c.Timeout > 5*time.Minute {
		return errors.Configf("httppost-output", "timeout must be between 0 and 5m, got %s", c.Timeout)
	}
	if c.RetryCount < 0 || c.RetryCount > 10 {
		return errors.Configf("httppost-output", "retry_count must be between 0 and 10, got %d", c.RetryCount)
	}
	if c.ContentType == "" {
		return errors.Configf("httppost-output", "content_type is required")
	}
	return nil
}

// DefaultConfig returns default configuration for HTTP writers
func DefaultConfig() Config {
	return Config{
		Headers:     map[string]string{},
		Timeout:     30 * time.Second,
		RetryCount:  3,
		ContentType: "application/octet-stream",
	}
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string { return fmt.Sprintf("HTTP %d: %s", e.Code, e.Status) }

// Retryable reports whether the status is worth another attempt: 408, 429
// and any 5xx.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Output POSTs each chunk to a URL.
type Output struct {
	url    string
	config Config
	logger *slog.Logger
	retry  retry.Config

	mu     sync.Mutex
	client *http.Client

	sent    atomic.Int64
	retried atomic.Int64
}

var _ pipeline.Sink = (*Output)(nil)

// NewOutput creates an HTTP writer for url.
func NewOutput(url string, config Config, deps component.Dependencies) *Output {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = config.RetryCount + 1
	rc.Retryable = retryable
	o := &Output{
		url:    url,
		config: config,
		logger: deps.GetLoggerWithComponent("httppost-output").With("url", url),
		retry:  rc,
	}
	o.retry.BeforeRetry = func(_ context.Context, attempt int, err error) error {
		o.retried.Add(1)
		o.logger.Debug("Retrying POST", "attempt", attempt+1, "error", err)
		return nil
	}
	return o
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

// Description implements pipeline.Sink.
func (h *Output) Description() string { return h.url }

// Sent returns the number of chunks delivered.
func (h *Output) Sent() int64 { return h.sent.Load() }

// Retried returns the number of retry attempts made.
func (h *Output) Retried() int64 { return h.retried.Load() }

// Open prepares the HTTP client. No request is made until the first chunk.
func (h *Output) Open(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.client = &http.Client{Timeout: h.config.Timeout}
	return nil
}

// Write POSTs chunk, retrying network errors and retryable statuses. An
// error that survives the retries is fatal for the writer.
func (h *Output) Write(ctx context.Context, chunk pipeline.Chunk) error {
	h.mu.Lock()
	client := h.client
	h.mu.Unlock()
	if client == nil {
		return errors.WrapFatal(errors.ErrNotRunning, "Output", "Write", "post to "+h.url)
	}

	err := retry.Do(ctx, h.retry, func() error {
		return h.post(ctx, client, chunk)
	})
	if err != nil {
		return errors.WrapFatal(errors.Join(errors.ErrWriteFailed, err), "Output", "Write", "post to "+h.url)
	}
	h.sent.Add(1)
	return nil
}

func (h *Output) post(ctx context.Context, client *http.Client, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(data))
	if err != nil {
		return retry.NonRetryable(err)
	}
	req.Header.Set("Content-Type", h.config.ContentType)
	for key, value := range h.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return nil
}

// Close releases idle connections.
func (h *Output) Close() error {
	h.mu.Lock()
	client := h.client
	h.client = nil
	h.mu.Unlock()
	if client != nil {
		client.CloseIdleConnections()
		h.logger.Debug("HTTP writer closed", "sent", h.sent.Load(), "retried", h.retried.Load())
	}
	return nil
}

// Register registers the HTTP writer with the given registry
func Register(registry *pipeline.Registry) error {
	return RegisterWithConfig(registry, DefaultConfig())
}

// RegisterWithConfig registers the HTTP writer using config for every
// instance.
func RegisterWithConfig(registry *pipeline.Registry, config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return registry.RegisterWithConfig(pipeline.RegistrationConfig{
		Kind:        string(pipeline.KindHTTP),
		Args:        []string{"url"},
		Description: "POSTs each chunk to an HTTP endpoint with retries",
		Sink: func(spec pipeline.EndpointSpec, deps component.Dependencies) (pipeline.Sink, error) {
			return NewOutput(spec.URL, config, deps), nil
		},
	})
}
