// Package remote checks whether a title already exists on the web archive.
package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rcliao/archive-sweep/internal/metrics"
)

const (
	DefaultSearchURL   = "https://archive.org/advancedsearch.php"
	DefaultDetailsURL  = "https://archive.org/details"
	DefaultTimeout     = 15 * time.Second
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultSearchRows  = 10
	DefaultUserAgent   = "archive-sweep/1.0"

	prefixRows   = 50
	maxBodyBytes = 4 << 20
)

// Client talks to the archive search and item endpoints.
type Client struct {
	searchURL   string
	detailsURL  string
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	rows        int
	userAgent   string
	suffixes    []string
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		client.httpClient.Timeout = d
	}
}

// WithEndpoints overrides the search and item details URLs.
func WithEndpoints(searchURL, detailsURL string) Option {
	return func(client *Client) {
		if searchURL != "" {
			client.searchURL = searchURL
		}
		if detailsURL != "" {
			client.detailsURL = detailsURL
		}
	}
}

// WithRetry sets the attempt ceiling and the first backoff delay. The delay
// doubles after each failed attempt.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(client *Client) {
		if maxAttempts > 0 {
			client.maxAttempts = maxAttempts
		}
		if baseDelay >= 0 {
			client.baseDelay = baseDelay
		}
	}
}

// WithSearchRows sets how many title search candidates are compared.
func WithSearchRows(n int) Option {
	return func(client *Client) {
		if n > 0 {
			client.rows = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(client *Client) {
		client.userAgent = ua
	}
}

// WithDuplicateSuffixes adds fixed resubmission suffixes (e.g. "_202508")
// to the date-based ones generated from the clock.
func WithDuplicateSuffixes(suffixes ...string) Option {
	return func(client *Client) {
		client.suffixes = append(client.suffixes, suffixes...)
	}
}

// WithClock sets the clock used to generate date suffixes.
func WithClock(now func() time.Time) Option {
	return func(client *Client) {
		client.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(client *Client) {
		client.logger = l
	}
}

// NewClient creates an archive client with the public archive.org endpoints.
func NewClient(opts ...Option) *Client {
	c := &Client{
		searchURL:  DefaultSearchURL,
		detailsURL: DefaultDetailsURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		rows:        DefaultSearchRows,
		userAgent:   DefaultUserAgent,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do performs a bodiless request, retrying transport failures, 429 and 5xx
// with exponential backoff. Any other status is returned to the caller.
func (c *Client) do(ctx context.Context, op, method, rawURL string) (int, []byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.ArchiveRetriesTotal.Add(1)
			delay := c.retryDelay(attempt - 1)
			c.logger.Warn("Retrying archive request", "op", op, "attempt", attempt, "delay", delay, "error", lastErr)
			if err := waitWithContext(ctx, delay); err != nil {
				return 0, nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: build request: %w", op, err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		metrics.ArchiveRequestsTotal.Add(1)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			lastErr = &Error{Op: op, Message: err.Error()}
			continue
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		if readErr != nil {
			lastErr = &Error{Op: op, Message: "read body: " + readErr.Error()}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Op: op}
			continue
		}
		c.logger.Debug("Archive response", "op", op, "status", resp.StatusCode, "url", rawURL)
		return resp.StatusCode, body, nil
	}
	return 0, nil, fmt.Errorf("%w: gave up after %d attempts: %w", ErrInconclusive, c.maxAttempts, lastErr)
}

func (c *Client) retryDelay(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return delay
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
