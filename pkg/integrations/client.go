package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/matzehuels/npmscout/pkg/cache"
	npmerrors "github.com/matzehuels/npmscout/pkg/errors"
	"github.com/matzehuels/npmscout/pkg/httputil"
	"github.com/matzehuels/npmscout/pkg/observability"
)

// Client provides shared HTTP functionality for all provider API clients.
// It handles retry logic, status mapping, rate limiting, circuit breaking,
// and common request headers.
type Client struct {
	http    *http.Client
	headers map[string]string
	retry   httputil.Policy
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	hooks   observability.HTTPHooks
	logger  *log.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client (tests use the
// httptest server's client).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(p httputil.Policy) Option {
	return func(c *Client) { c.retry = p }
}

// WithRateLimit limits outgoing requests to rps per second with the given
// burst. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithCircuitBreaker makes the client fail fast with [ErrCircuitOpen] after
// failures consecutive network or 5xx failures, probing again after cooldown.
// Not-found and rate-limit responses never count as failures.
func WithCircuitBreaker(name string, failures uint32, cooldown time.Duration) Option {
	return func(c *Client) {
		if failures == 0 {
			c.breaker = nil
			return
		}
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !errors.Is(err, ErrNetwork)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("circuit breaker state changed", "provider", name, "from", from, "to", to)
			},
		})
	}
}

// WithHooks reports requests and responses to h.
func WithHooks(h observability.HTTPHooks) Option {
	return func(c *Client) {
		if h != nil {
			c.hooks = h
		}
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a Client with the given default headers.
// Headers are applied to all requests made through this client.
// Pass nil for headers if no default headers are needed.
func NewClient(headers map[string]string, opts ...Option) *Client {
	c := &Client{
		http:    NewHTTPClient(),
		headers: headers,
		retry:   httputil.DefaultPolicy(),
		hooks:   observability.NoopHTTPHooks{},
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cached retrieves a value from store or executes fetch and caches the result.
// If refresh is true, the lookup is skipped but the result is still stored.
// The fetch function should populate v. A nil store disables caching.
func Cached(ctx context.Context, store *cache.Store, key string, refresh bool, v any, fetch func() error) error {
	if store != nil && !refresh && store.GetJSON(ctx, key, v) {
		return nil
	}
	if err := fetch(); err != nil {
		return err
	}
	if store != nil {
		store.PutJSON(ctx, key, v)
	}
	return nil
}

// Get performs an HTTP GET request and JSON-decodes the response into v.
// It uses the client's default headers and handles retries automatically.
func (c *Client) Get(ctx context.Context, url string, v any) error {
	return c.GetWithHeaders(ctx, url, nil, v)
}

// GetWithHeaders performs an HTTP GET with additional headers merged with defaults.
// Request-specific headers override client defaults for the same key.
func (c *Client) GetWithHeaders(ctx context.Context, url string, headers map[string]string, v any) error {
	return c.retry.Do(ctx, func() error {
		body, err := c.doRequest(ctx, url, headers)
		if err != nil {
			return err
		}
		defer body.Close()
		if err := json.NewDecoder(body).Decode(v); err != nil {
			return fmt.Errorf("decode %s: %w", url, err)
		}
		return nil
	})
}

// GetText performs an HTTP GET request and returns the response body as a string.
// Useful for non-JSON endpoints like README files.
func (c *Client) GetText(ctx context.Context, url string) (string, error) {
	var text string
	err := c.retry.Do(ctx, func() error {
		body, err := c.doRequest(ctx, url, nil)
		if err != nil {
			return err
		}
		defer body.Close()
		data, err := io.ReadAll(body)
		if err != nil {
			return httputil.Retryable(fmt.Errorf("%w: read body: %v", ErrNetwork, err))
		}
		text = string(data)
		return nil
	})
	return text, err
}

// Open performs an HTTP GET and returns the response body for streaming.
// Establishing the response is retried; reading the body is not.
// The caller must close the returned reader.
func (c *Client) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := c.retry.Do(ctx, func() error {
		var err error
		body, err = c.doRequest(ctx, url, nil)
		return err
	})
	return body, err
}

func (c *Client) doRequest(ctx context.Context, rawURL string, headers map[string]string) (io.ReadCloser, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if c.breaker == nil {
		return c.send(ctx, rawURL, headers)
	}
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.send(ctx, rawURL, headers)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	if err != nil {
		return nil, err
	}
	return res.(io.ReadCloser), nil
}

func (c *Client) send(ctx context.Context, rawURL string, headers map[string]string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	host, path := req.URL.Host, redactedPath(req.URL)
	c.hooks.OnRequest(ctx, req.Method, host, path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		c.hooks.OnError(ctx, req.Method, host, path, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &httputil.RetryableError{Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
	}
	c.hooks.OnResponse(ctx, req.Method, host, path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp, host); err != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		c.logger.Debug("request failed", "host", host, "path", path, "status", resp.StatusCode)
		return nil, err
	}
	return resp.Body, nil
}

func checkStatus(resp *http.Response, host string) error {
	code := resp.StatusCode
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return &npmerrors.RateLimitedError{
			RetryAfter: retryAfterSeconds(resp.Header.Get("Retry-After")),
			Message:    host,
		}
	case code >= 500:
		return &httputil.RetryableError{
			Err:   fmt.Errorf("%w: status %d", ErrNetwork, code),
			After: time.Duration(retryAfterSeconds(resp.Header.Get("Retry-After"))) * time.Second,
		}
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}

// retryAfterSeconds parses a Retry-After header given either as seconds or
// as an HTTP date. It returns 0 when the header is absent or unparseable.
func retryAfterSeconds(v string) int {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return max(secs, 0)
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return int(d.Round(time.Second) / time.Second)
		}
	}
	return 0
}

// redactedPath drops the query string, which may carry API keys.
func redactedPath(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}
