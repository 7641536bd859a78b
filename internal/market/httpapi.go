package market

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/harborview-capital/regionscan/internal/resilience"
)

// errRegionUnknown marks a well-formed 404 from the trend service; it is a
// miss, not a failure, and never trips the breaker or triggers a retry.
var errRegionUnknown = eris.New("market: region unknown to trend service")

const apiMaxBody = 1 << 20

// APIOption configures the API provider.
type APIOption func(*API)

// WithAPIHTTPClient sets a custom HTTP client.
func WithAPIHTTPClient(hc *http.Client) APIOption {
	return func(a *API) {
		a.http = hc
	}
}

// WithAPIRateLimit caps outbound request rate.
func WithAPIRateLimit(rps float64, burst int) APIOption {
	return func(a *API) {
		a.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithAPIRetry replaces the retry settings.
func WithAPIRetry(cfg resilience.RetryConfig) APIOption {
	return func(a *API) {
		a.retry = cfg
	}
}

// WithAPIBreaker replaces the circuit breaker settings.
func WithAPIBreaker(cfg resilience.CircuitBreakerConfig) APIOption {
	return func(a *API) {
		cfg.ShouldTrip = resilience.IsTransient
		a.breakers = resilience.NewBreakerSet(cfg)
	}
}

// API fetches trends from a JSON-over-HTTP trend service. Requests are
// rate-limited, retried on transient failures, and guarded by a circuit
// breaker per endpoint host.
type API struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	retry    resilience.RetryConfig
	breakers *resilience.BreakerSet
}

// NewAPI builds the provider. An empty baseURL yields a provider that
// reports itself unavailable, so the cascade skips it.
func NewAPI(baseURL, apiKey string, opts ...APIOption) *API {
	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	breakerCfg.ShouldTrip = resilience.IsTransient

	a := &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter:  rate.NewLimiter(rate.Limit(5), 10),
		retry:    resilience.DefaultRetryConfig(),
		breakers: resilience.NewBreakerSet(breakerCfg),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements Provider.
func (a *API) Name() string { return "api" }

// Available implements Provider.
func (a *API) Available() bool { return a != nil && a.baseURL != "" }

// apiResponse is the trend service's JSON payload.
type apiResponse struct {
	Region   string  `json:"region"`
	TrendPct float64 `json:"trend_pct"`
}

// Trend implements Provider.
func (a *API) Trend(ctx context.Context, regionKey string) (Trend, bool, error) {
	endpoint := a.baseURL + "/v1/regions/" + url.PathEscape(regionKey) + "/trend"
	breaker := a.breakers.ForHost(hostOf(endpoint))

	resp, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (apiResponse, error) {
		return resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (apiResponse, error) {
			return a.fetch(ctx, endpoint)
		})
	})
	if err != nil {
		if eris.Is(err, errRegionUnknown) {
			return Trend{}, false, nil
		}
		return Trend{}, false, eris.Wrapf(err, "market: fetch trend for %s", regionKey)
	}

	return Trend{Pct: resp.TrendPct, Source: a.Name()}, true, nil
}

func (a *API) fetch(ctx context.Context, endpoint string) (apiResponse, error) {
	var out apiResponse

	if err := a.limiter.Wait(ctx); err != nil {
		return out, eris.Wrap(err, "market: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return out, eris.Wrap(err, "market: build request")
	}
	req.Header.Set("Accept", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return out, eris.Wrap(err, "market: execute request")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return out, errRegionUnknown
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return out, resilience.MarkTransient(
			eris.Errorf("market: trend service returned status %d", resp.StatusCode),
			resp.StatusCode,
		)
	case resp.StatusCode != http.StatusOK:
		return out, eris.Errorf("market: trend service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, apiMaxBody))
	if err != nil {
		return out, eris.Wrap(err, "market: read response body")
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, eris.Wrap(err, "market: decode response")
	}
	return out, nil
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}
