// Package reachability performs the HTTP checks the viewer uses as secondary
// signals: internet connectivity and livestream URL redirect resolution.
package reachability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds a single check when the caller's context has no deadline.
	DefaultTimeout = 10 * time.Second

	defaultUserAgent = "livestream-viewer"

	// Response bodies are drained up to this size so connections can be reused.
	maxDrainBytes = 64 << 10
)

// ErrUnexpectedStatus is returned when the endpoint answers outside the 2xx range.
var ErrUnexpectedStatus = errors.New("unexpected status")

// Options configures a Checker.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Logger    *slog.Logger

	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// Checker issues bounded HTTP GET requests.
// Safe for concurrent use.
type Checker struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	logger    *slog.Logger
}

// New creates a Checker. Zero option values fall back to defaults.
func New(opts Options) *Checker {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Client == nil {
		opts.Client = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   opts.Timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   opts.Timeout,
				ResponseHeaderTimeout: opts.Timeout,
				MaxIdleConns:          4,
				IdleConnTimeout:       90 * time.Second,
			},
		}
	}

	return &Checker{
		client:    opts.Client,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		logger:    opts.Logger,
	}
}

// Check performs a single GET against url. It returns nil iff the response
// status is 2xx. Network errors, timeouts and other statuses are returned.
func (c *Checker) Check(ctx context.Context, url string) error {
	status, _, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, status, url)
	}
	return nil
}

// IsReachable reports whether url answers a GET with a 2xx status.
// Any error yields false.
func (c *Checker) IsReachable(ctx context.Context, url string) bool {
	if err := c.Check(ctx, url); err != nil {
		c.logger.Debug("reachability_check_failed", "url", url, "error", err)
		return false
	}
	return true
}

// Resolve follows redirects from url and returns the final URL.
// The status code of the final response is not checked.
func (c *Checker) Resolve(ctx context.Context, url string) (string, error) {
	_, final, err := c.get(ctx, url)
	if err != nil {
		return "", err
	}
	return final, nil
}

// ResolveOrDefault resolves url, falling back to url itself on any error.
func (c *Checker) ResolveOrDefault(ctx context.Context, url string) string {
	resolved, err := c.Resolve(ctx, url)
	if err != nil {
		c.logger.Warn("url_resolution_failed", "url", url, "error", err)
		return url
	}
	if resolved != url {
		c.logger.Debug("url_resolved", "url", url, "resolved", resolved)
	}
	return resolved
}

// get issues the request and returns the final status code and URL
// after redirects. The body is drained and closed.
func (c *Checker) get(ctx context.Context, url string) (int, string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	final := url
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return resp.StatusCode, final, nil
}
