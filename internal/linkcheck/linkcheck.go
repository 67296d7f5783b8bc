// Package linkcheck tells whether a URL still resolves.
package linkcheck

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// DefaultTimeout bounds every HEAD request.
const DefaultTimeout = 5 * time.Second

type result struct {
	status int
	err    error
}

// Checker sends HEAD requests and remembers the answer for each URL, so a
// link that appears on many pages is requested once per run.
// Redirects are followed by the underlying client.
type Checker struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]result
}

// Option configures a Checker.
type Option func(*Checker)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Checker) {
		c.timeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// New creates a Checker that uses client for requests.
func New(client *http.Client, opts ...Option) *Checker {
	c := &Checker{
		client:  client,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		cache:   make(map[string]result),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check returns the final status code of a HEAD request to rawURL, or the
// transport error. A status of 400 or more means the link is broken.
func (c *Checker) Check(rawURL string) (int, error) {
	c.mu.Lock()
	if r, ok := c.cache[rawURL]; ok {
		c.mu.Unlock()
		return r.status, r.err
	}
	c.mu.Unlock()

	status, err := c.head(rawURL)
	c.logger.Debug("checked link", "url", rawURL, "status", status, "error", err)

	c.mu.Lock()
	c.cache[rawURL] = result{status: status, err: err}
	c.mu.Unlock()
	return status, err
}

func (c *Checker) head(rawURL string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	return resp.StatusCode, nil
}
