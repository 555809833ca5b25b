// Package httpx provides the shared HTTP client used by every provider
// adapter: tuned connection pooling, a browser-grade default User-Agent, and
// an optional per-client pacer that smooths raw request bursts independently
// of the per-provider budget limiter.
package httpx

import (
	"context"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"quoteflow/config"
)

// Client is a small wrapper around http.Client with sane defaults.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Headers   map[string]string
	pacer     *rate.Limiter
}

// New builds a client with the configured timeout and pool settings.
// Pacing is disabled when requests_per_second is zero.
func New(timeout time.Duration, pool config.ConnectionPool, pacing config.PacingConfig) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   3 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          pool.MaxIdleConns,
		MaxIdleConnsPerHost:   pool.MaxIdleConns,
		MaxConnsPerHost:       pool.MaxConnsPerHost,
		IdleConnTimeout:       pool.IdleConnTimeout,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	var pacer *rate.Limiter
	if pacing.RequestsPerSecond > 0 {
		burst := pacing.BurstSize
		if burst <= 0 {
			burst = 1
		}
		pacer = rate.NewLimiter(rate.Limit(pacing.RequestsPerSecond), burst)
	}

	return &Client{
		HTTP: &http.Client{Timeout: timeout, Transport: transport},
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
			"AppleWebKit/537.36 (KHTML, like Gecko) " +
			"Chrome/124.0.0.0 Safari/537.36",
		pacer: pacer,
	}
}

// Do applies default headers and the pacer, then runs the request.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return c.HTTP.Do(req.WithContext(ctx))
}
