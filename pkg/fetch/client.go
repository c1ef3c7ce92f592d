// Package fetch provides a throttled, retrying HTTP client for price sources.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/ogulcanaydogan/fare-guardian/pkg/model"
)

const (
	DefaultMaxAttempts = 3
	DefaultMaxBackoff  = 60 * time.Second
	maxBodySize        = 10 * 1024 * 1024
)

// Request is one upstream call.
type Request struct {
	Method string
	URL    string
	Body   []byte
	Header http.Header
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Options configures a Client.
type Options struct {
	Source            string
	Window            time.Duration
	RequestsPerWindow int
	MaxAttempts       int
	MaxBackoff        time.Duration
	Timeout           time.Duration
}

// Client performs throttled requests for a single logical source.
type Client struct {
	source      string
	http        *http.Client
	throttle    *Throttle
	maxAttempts int
	maxBackoff  time.Duration
	logger      *slog.Logger

	// sleep waits between retry attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client with its own throttle state.
func NewClient(opts Options, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	return &Client{
		source:      opts.Source,
		http:        httpClient,
		throttle:    NewThrottle(opts.Window, opts.RequestsPerWindow),
		maxAttempts: opts.MaxAttempts,
		maxBackoff:  opts.MaxBackoff,
		logger:      logger.With("source", opts.Source),
		sleep:       sleep,
	}
}

// Source returns the logical source name this client throttles for.
func (c *Client) Source() string { return c.source }

// Backoff returns the wait before retry attempt n (n >= 1): 2^n seconds, capped.
func Backoff(n int, ceiling time.Duration) time.Duration {
	if n < 1 {
		n = 1
	}
	secs := math.Pow(2, float64(n))
	if secs >= ceiling.Seconds() {
		return ceiling
	}
	return time.Duration(secs * float64(time.Second))
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

var errInvalidRequest = errors.New("invalid request")

func retryable(err error) bool {
	if errors.Is(err, errInvalidRequest) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}

// Do sends the request, waiting for the throttle and retrying transient
// failures. Exhausted retries wrap model.ErrSourceUnavailable.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			wait := Backoff(attempt-1, c.maxBackoff)
			c.logger.Info("retrying request", "target", req.URL, "attempt", attempt, "backoff", wait)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		if err := c.throttle.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.once(ctx, req, attempt)
		if err == nil {
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = err
		if !retryable(err) {
			return nil, fmt.Errorf("%s %s: %w: %w", req.Method, req.URL, model.ErrSourceUnavailable, err)
		}
	}
	return nil, fmt.Errorf("%s %s after %d attempts: %w: %w",
		req.Method, req.URL, c.maxAttempts, model.ErrSourceUnavailable, lastErr)
}

func (c *Client) once(ctx context.Context, req Request, attempt int) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidRequest, err)
	}
	for k, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	c.logger.Debug("upstream request", "method", method, "target", req.URL, "attempt", attempt)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Warn("upstream request failed",
			"method", method,
			"target", req.URL,
			"attempt", attempt,
			"elapsed", time.Since(start),
			"error", err,
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Warn("read upstream body", "method", method, "target", req.URL, "status", resp.StatusCode, "error", err)
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("upstream request rejected",
			"method", method,
			"target", req.URL,
			"status", resp.StatusCode,
			"attempt", attempt,
			"elapsed", elapsed,
		)
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	c.logger.Info("upstream request complete",
		"method", method,
		"target", req.URL,
		"status", resp.StatusCode,
		"attempt", attempt,
		"elapsed", elapsed,
	)
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}
