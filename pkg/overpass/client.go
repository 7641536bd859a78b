// Package overpass provides a minimal client for Overpass-style geodata
// count endpoints. The client issues exactly one HTTP request per call;
// retry and endpoint failover belong to the caller, which is what makes the
// attempt schedule testable in isolation.
package overpass

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client counts features near a coordinate via an interchangeable endpoint.
type Client interface {
	// Count runs q against the given endpoint URL and returns the total
	// number of matching features.
	Count(ctx context.Context, endpoint string, q Query) (int, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserAgent overrides the User-Agent header. Public Overpass instances
// require an identifying agent.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

// WithRateLimit sets the per-host request rate. Public instances ask for at
// most a couple of requests per second per client.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.rps = rps
		c.burst = burst
	}
}

type httpClient struct {
	http      *http.Client
	userAgent string

	rps   float64
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient builds a count client with sane defaults: 30s transport timeout,
// 1 req/s per endpoint host.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: "regionscan/1.0",
		rps:       1,
		burst:     2,
		limiters:  make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// countResponse is the JSON shape of an `out count;` result.
type countResponse struct {
	Elements []struct {
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

func (c *httpClient) Count(ctx context.Context, endpoint string, q Query) (int, error) {
	ql, err := q.Build()
	if err != nil {
		return 0, err
	}

	if err := c.limiterFor(endpoint).Wait(ctx); err != nil {
		return 0, eris.Wrap(err, "overpass: rate limit")
	}

	form := url.Values{"data": {ql}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, eris.Wrap(err, "overpass: build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "overpass: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, eris.Wrap(err, "overpass: read body")
	}

	if resp.StatusCode != http.StatusOK {
		return 0, eris.Errorf("overpass: %s returned status %d", endpoint, resp.StatusCode)
	}

	var parsed countResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, eris.Wrap(err, "overpass: parse response")
	}
	if len(parsed.Elements) == 0 {
		return 0, eris.New("overpass: response has no count element")
	}

	total, ok := parsed.Elements[0].Tags["total"]
	if !ok {
		return 0, eris.New("overpass: count element missing total tag")
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, eris.Wrapf(err, "overpass: total %q is not a number", total)
	}
	if n < 0 {
		return 0, eris.Errorf("overpass: negative total %d", n)
	}
	return n, nil
}

// limiterFor returns the rate limiter for the endpoint's host, creating it
// on first use. Mirrors of the same service run on distinct hosts, so each
// gets its own budget.
func (c *httpClient) limiterFor(endpoint string) *rate.Limiter {
	host := endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		host = u.Host
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(c.rps), c.burst)
		c.limiters[host] = lim
	}
	return lim
}
