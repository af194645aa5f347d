// Package completion talks to the OpenAI-compatible AI gateway.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aman-churiwal/storyforge/internal/config"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned without contacting the gateway while the breaker is open.
var ErrCircuitOpen = errors.New("completion gateway circuit open")

// errNoHeaders cancels a stream whose response headers did not arrive in time.
var errNoHeaders = fmt.Errorf("no response headers from gateway: %w", context.DeadlineExceeded)

// maxErrorBody bounds how much of a failed response is kept for logging.
const maxErrorBody = 64 << 10

type Options struct {
	URL               string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	BreakerFailures   uint32
	BreakerTimeout    time.Duration
	HTTPClient        *http.Client
}

// OptionsFromConfig maps the gateway section onto client options.
func OptionsFromConfig(cfg config.GatewayConfig) Options {
	return Options{
		URL:               cfg.URL,
		APIKey:            cfg.APIKey,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		BreakerFailures:   cfg.BreakerFailures,
		BreakerTimeout:    cfg.BreakerTimeout,
	}
}

type Client struct {
	url        string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	if opts.HTTPClient == nil {
		// No client-wide timeout: it would cut long streams. Complete and Stream bound the wait themselves.
		opts.HTTPClient = &http.Client{}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	failures := opts.BreakerFailures
	return &Client{
		url:        opts.URL,
		apiKey:     opts.APIKey,
		timeout:    opts.Timeout,
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "completion-gateway",
			Timeout: opts.BreakerTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= failures
			},
			IsSuccessful: isHealthy,
		}),
	}
}

// isHealthy decides what counts against the breaker. Quota answers (4xx) and
// caller cancellations say nothing about the gateway's health.
func isHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Status < http.StatusInternalServerError
	}
	return false
}

// BreakerState is exposed on /health.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// Complete sends a non-streaming request and decodes the JSON completion.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req.Stream = false

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode completion: %w", err)
	}
	return &out, nil
}

// Stream sends a streaming request and returns the raw SSE body. The timeout only
// covers the wait for response headers; afterwards the stream lives as long as ctx.
func (c *Client) Stream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	req.Stream = true

	ctx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(c.timeout, func() { cancel(errNoHeaders) })

	resp, err := c.send(ctx, req)
	if !timer.Stop() && err == nil {
		resp.Body.Close()
		err = errNoHeaders
	}
	if err != nil {
		if errors.Is(context.Cause(ctx), errNoHeaders) {
			err = fmt.Errorf("no response within %s: %w", c.timeout, context.DeadlineExceeded)
		}
		cancel(nil)
		return nil, err
	}

	return &streamBody{ReadCloser: resp.Body, cancel: func() { cancel(nil) }}, nil
}

func (c *Client) send(ctx context.Context, req ChatRequest) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for gateway capacity: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		if req.Stream {
			httpReq.Header.Set("Accept", "text/event-stream")
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			// A header timeout surfaces as a cancel; report it as the failure it is.
			if cause := context.Cause(ctx); errors.Is(cause, errNoHeaders) {
				return nil, cause
			}
			return nil, err
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			resp.Body.Close()
			return nil, &UpstreamError{Status: resp.StatusCode, Body: string(raw)}
		}
		return resp, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result.(*http.Response), nil
}

type streamBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (s *streamBody) Close() error {
	err := s.ReadCloser.Close()
	s.cancel()
	return err
}
