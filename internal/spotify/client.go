// Package spotify implements the catalog provider backed by the Spotify Web API.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"podfinder/internal/catalog"
	"podfinder/internal/metrics"
)

const (
	// DefaultAPIURL is the base URL of the Web API.
	DefaultAPIURL = "https://api.spotify.com/v1"

	// MaxPageSize is the largest page the search endpoint accepts.
	MaxPageSize = 50
	// MaxBatchSize is the largest id list the episodes endpoint accepts.
	MaxBatchSize = 50

	endpointSearch   = "search"
	endpointEpisodes = "episodes"

	maxBodyBytes      = 5 * 1024 * 1024
	maxErrorBodyBytes = 512
	defaultRetryAfter = time.Second

	breakerFailures = 5
	breakerTimeout  = 2 * time.Minute
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the search and episodes endpoints.
type Client struct {
	baseURL  string
	tokenURL string
	http     HTTPClient
	tokens   *TokenManager
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[struct{}]
	sleep    func(ctx context.Context, d time.Duration) error
	log      *slog.Logger

	tokenOpts []TokenOption
}

// Option customises Client construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for API requests.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTokenURL points the client at another token endpoint.
func WithTokenURL(u string) Option {
	return func(c *Client) {
		c.tokenURL = u
	}
}

// WithRateLimit caps outgoing API requests per second. Zero disables the cap.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithLogger sets the logger for the client and its token manager.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
			c.tokenOpts = append(c.tokenOpts, WithTokenLogger(log))
		}
	}
}

// WithTokenOptions forwards options to the token manager.
func WithTokenOptions(opts ...TokenOption) Option {
	return func(c *Client) {
		c.tokenOpts = append(c.tokenOpts, opts...)
	}
}

// New creates a Client. It fails with an authentication error when either
// credential is empty.
func New(clientID, clientSecret string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: DefaultAPIURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Inf, 1),
		sleep:   sleepContext,
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}

	tokens, err := NewTokenManager(clientID, clientSecret, c.tokenURL, c.tokenOpts...)
	if err != nil {
		return nil, err
	}
	c.tokens = tokens
	c.breaker = newBreaker(c.log)
	return c, nil
}

func newBreaker(log *slog.Logger) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "spotify",
		Timeout: breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, catalog.ErrAuth) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// getJSON issues an authenticated GET and decodes a 200 response into out.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.doGet(ctx, endpoint, params, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &catalog.APIError{Endpoint: endpoint, Err: err}
	}
	return err
}

func (c *Client) doGet(ctx context.Context, endpoint string, params url.Values, out any) error {
	refreshed := false
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return &catalog.APIError{Endpoint: endpoint, Err: err}
		}
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}

		resp, err := c.send(ctx, endpoint, params, token)
		if err != nil {
			metrics.ObserveRequest(endpoint, 0)
			return &catalog.APIError{Endpoint: endpoint, Err: err}
		}
		metrics.ObserveRequest(endpoint, resp.StatusCode)

		switch {
		case resp.StatusCode == http.StatusUnauthorized && !refreshed:
			drain(resp)
			refreshed = true
			c.log.Debug("bearer token rejected, refreshing", "endpoint", endpoint)
			if _, err := c.tokens.Refresh(ctx); err != nil {
				return err
			}
			continue

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp.Header.Get("Retry-After"))
			drain(resp)
			metrics.RateLimited.WithLabelValues(endpoint).Inc()
			c.log.Warn("rate limited", "endpoint", endpoint, "retry_after", wait)
			if err := c.sleep(ctx, wait); err != nil {
				return &catalog.APIError{Endpoint: endpoint, Err: err}
			}
			continue

		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
			_ = resp.Body.Close()
			return &catalog.APIError{Endpoint: endpoint, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}

		err = json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out)
		_ = resp.Body.Close()
		if err != nil {
			return &catalog.APIError{Endpoint: endpoint, Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	}
}

func (c *Client) send(ctx context.Context, endpoint string, params url.Values, token string) (*http.Response, error) {
	u := c.baseURL + "/" + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
	_ = resp.Body.Close()
}

// retryAfter parses a Retry-After value given in seconds or as an HTTP date.
func retryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultRetryAfter
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return defaultRetryAfter
		}
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBodyBytes {
		return s[:maxErrorBodyBytes]
	}
	return s
}
