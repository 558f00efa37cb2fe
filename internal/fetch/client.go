// Package fetch issues GET requests against external data hosts with a
// bounded retry policy.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	defaultBackoffBase = time.Second
	defaultUserAgent   = "energy-feeds/1.0"
)

// Config is the retry and transport policy shared by every request of a Client.
type Config struct {
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	RateLimit   float64 // requests per second, 0 disables
	UserAgent   string
}

// DefaultConfig returns the production policy: 30s timeout, 3 attempts, 1s doubling backoff.
func DefaultConfig() Config {
	return Config{
		Timeout:     defaultTimeout,
		MaxAttempts: defaultMaxAttempts,
		BackoffBase: defaultBackoffBase,
		UserAgent:   defaultUserAgent,
	}
}

// Getter is satisfied by Client and by test doubles.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Client fetches URLs. It holds no mutable state besides the optional limiter.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates a client, filling zero fields of cfg with defaults.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.With("component", "fetch"),
	}
}

// Get performs a GET with retries. Only transient statuses and network errors
// are retried; the returned error is always a *Error once retries are spent.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	backoff := retry.WithMaxRetries(uint64(c.cfg.MaxAttempts-1), retry.NewExponential(c.cfg.BackoffBase))

	var body []byte
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		b, err := c.doRequest(ctx, url)
		if err == nil {
			body = b
			return nil
		}

		if isTransient(err) && ctx.Err() == nil {
			if attempt < c.cfg.MaxAttempts {
				c.logger.Warn("request failed, retrying",
					slog.String("url", url),
					slog.Int("attempt", attempt),
					slog.Any("error", err))
			}
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return body, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var fe *Error
	if errors.As(err, &fe) {
		fe.Attempts = attempt
		fe.Transient = false
	} else {
		fe = &Error{URL: url, Attempts: attempt, Err: err}
	}
	c.logger.Error("request failed",
		slog.String("url", url),
		slog.Int("attempts", attempt),
		slog.Int("status", fe.Status),
		slog.Any("error", fe.Err))
	return nil, fe
}

func (c *Client) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{URL: url, Transient: true, Err: fmt.Errorf("executing request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{URL: url, Transient: true, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			URL:       url,
			Status:    resp.StatusCode,
			Transient: retryableStatus(resp.StatusCode),
			Err:       fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return body, nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
