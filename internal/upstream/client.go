// Package upstream is the shared JSON HTTP client for third-party read APIs
// (Binance, CoinGecko, Dexscreener, Etherscan, Neynar, Talent Protocol, Morpho).
//
// Every request is bounded by a timeout, counted and timed per provider,
// traced, and guarded by a per-provider circuit breaker. GETs are retried
// on transport errors, 429 and 5xx responses.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mbd888/basemcp/internal/circuitbreaker"
	"github.com/mbd888/basemcp/internal/config"
	"github.com/mbd888/basemcp/internal/metrics"
	"github.com/mbd888/basemcp/internal/retry"
	"github.com/mbd888/basemcp/internal/traces"
)

// ErrCircuitOpen is returned without contacting the provider while its
// circuit is open.
var ErrCircuitOpen = circuitbreaker.ErrOpen

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 10 << 20

// StatusError is returned for HTTP responses with status >= 400.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Options configure a Client.
type Options struct {
	Timeout    time.Duration
	Retry      retry.Policy
	Breaker    *circuitbreaker.Breaker // nil disables the breaker
	Header     http.Header             // sent on every request
	HTTPClient *http.Client
}

// OptionsFromConfig derives client options from the process configuration.
func OptionsFromConfig(cfg *config.Config, b *circuitbreaker.Breaker) Options {
	p := retry.DefaultPolicy()
	p.MaxAttempts = cfg.UpstreamMaxAttempts
	return Options{Timeout: cfg.UpstreamTimeout, Retry: p, Breaker: b}
}

// Client talks to one provider.
type Client struct {
	provider   string
	baseURL    string
	header     http.Header
	policy     retry.Policy
	breaker    *circuitbreaker.Breaker
	httpClient *http.Client
}

// New creates a client for provider rooted at baseURL.
func New(provider, baseURL string, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	return &Client{
		provider:   provider,
		baseURL:    strings.TrimRight(baseURL, "/"),
		header:     opts.Header.Clone(),
		policy:     opts.Retry,
		breaker:    opts.Breaker,
		httpClient: hc,
	}
}

// Provider returns the provider name used for metrics and breaker keys.
func (c *Client) Provider() string { return c.provider }

// WithHeader returns a copy of c that also sends key: value.
func (c *Client) WithHeader(key, value string) *Client {
	cp := *c
	cp.header = c.header.Clone()
	if cp.header == nil {
		cp.header = http.Header{}
	}
	cp.header.Set(key, value)
	return &cp
}

// GetJSON performs a GET and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	raw, err := c.Do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return decode(raw, out)
}

// PostJSON performs a single-attempt POST with a JSON body and decodes the
// response into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	raw, err := c.Do(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return err
	}
	return decode(raw, out)
}

func decode(raw json.RawMessage, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Do makes an HTTP request and returns the raw response body.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	ctx, span := traces.StartSpan(ctx, "upstream."+c.provider, traces.Provider(c.provider))
	var result json.RawMessage

	policy := c.policy
	if method != http.MethodGet {
		policy.MaxAttempts = 1
	}

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		var attemptErr error
		run := func() error {
			result, attemptErr = c.once(ctx, method, path, query, body)
			return attemptErr
		}
		if c.breaker != nil {
			err := c.breaker.Execute(c.provider, run, countsAsFailure)
			if errors.Is(err, circuitbreaker.ErrOpen) {
				return retry.Permanent(fmt.Errorf("%s: %w", c.provider, ErrCircuitOpen))
			}
		} else {
			_ = run()
		}
		if attemptErr == nil {
			return nil
		}
		var se *StatusError
		if errors.As(attemptErr, &se) && !se.Retryable() {
			return retry.Permanent(attemptErr)
		}
		return attemptErr
	})

	traces.End(span, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// countsAsFailure excludes client errors from breaker accounting: a 404
// for an unknown token says nothing about provider health.
func countsAsFailure(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return !errors.Is(err, context.Canceled)
}

func (c *Client) once(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("invalid URL: %w", err))
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("marshal request body: %w", err))
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstream(c.provider, 0, time.Since(start))
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	metrics.ObserveUpstream(c.provider, resp.StatusCode, time.Since(start))

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Provider: c.provider, StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	return json.RawMessage(respBody), nil
}

// apiError covers the error envelopes used by the providers we call.
type apiError struct {
	Error   any    `json:"error"`
	Message string `json:"message"`
	Msg     string `json:"msg"`
}

func errorMessage(body []byte) string {
	var e apiError
	if json.Unmarshal(body, &e) == nil {
		switch {
		case e.Message != "":
			return e.Message
		case e.Msg != "":
			return e.Msg
		}
		if s, ok := e.Error.(string); ok && s != "" {
			return s
		}
	}
	return strings.TrimSpace(string(body))
}
