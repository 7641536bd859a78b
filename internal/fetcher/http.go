package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/harborview-capital/regionscan/internal/resilience"
)

// HostRate is the request rate granted to one host.
type HostRate struct {
	PerSecond float64
	Burst     int
}

// HTTPOptions configures the HTTP fetcher. Zero values take the defaults
// below; production values come from the fetcher config section.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// RetryBaseDelay is the sleep before the first retry; later retries
	// back off from it exponentially.
	RetryBaseDelay time.Duration
	// HostRates grants specific hosts their own request rate. Hosts not
	// listed get DefaultRate. The portals the dataset and market sources
	// pull from publish large files and throttle aggressively, so their
	// rates are configured well below the default.
	HostRates   map[string]HostRate
	DefaultRate HostRate
}

func (o HTTPOptions) withDefaults() HTTPOptions {
	if o.UserAgent == "" {
		o.UserAgent = "regionscan/1.0"
	}
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryBaseDelay == 0 {
		o.RetryBaseDelay = time.Second
	}
	if o.DefaultRate.PerSecond == 0 {
		o.DefaultRate = HostRate{PerSecond: 20, Burst: 20}
	}
	if o.DefaultRate.Burst == 0 {
		o.DefaultRate.Burst = 1
	}
	return o
}

// HTTPFetcher implements ConditionalFetcher using net/http with per-host
// rate limiting and transient-error retries.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions
	retry  resilience.RetryConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	opts = opts.withDefaults()
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts: opts,
		retry: resilience.RetryConfig{
			MaxAttempts: opts.MaxRetries,
			BaseDelay:   opts.RetryBaseDelay,
			OnRetry: func(attempt int, err error) {
				zap.L().Warn("fetch attempt failed, retrying",
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
			},
		},
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiterFor returns the limiter for the URL's host, creating it on first
// use from the configured host rates.
func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if lim, ok := f.limiters[host]; ok {
		return lim
	}
	hr, ok := f.opts.HostRates[host]
	if !ok {
		hr = f.opts.DefaultRate
	}
	if hr.Burst == 0 {
		hr.Burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(hr.PerSecond), hr.Burst)
	f.limiters[host] = lim
	return lim
}

// get performs one rate-limited GET with retries. Responses with retryable
// statuses (429, 5xx) count as transient failures; any 2xx/3xx/4xx response
// is returned to the caller to interpret.
func (f *HTTPFetcher) get(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	lim := f.limiterFor(rawURL)

	return resilience.DoVal(ctx, f.retry, func(ctx context.Context) (*http.Response, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, resilience.MarkTransient(eris.Wrapf(err, "fetcher: get %s", rawURL), 0)
		}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			_ = resp.Body.Close()
			return nil, resilience.MarkTransient(
				eris.Errorf("fetcher: http %d from %s", resp.StatusCode, rawURL), resp.StatusCode)
		}
		return resp, nil
	})
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := f.get(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("fetcher: unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	return resp.Body, nil
}

// DownloadToFile fetches the URL and writes it to the given path. Returns
// bytes written.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, body)
	if err != nil {
		return n, eris.Wrap(err, "fetcher: write file")
	}

	return n, nil
}

// DownloadIfChanged fetches the URL only if the ETag has changed.
// Returns (body, newETag, changed, error); on 304 body is nil and the
// caller's etag is echoed back.
func (f *HTTPFetcher) DownloadIfChanged(ctx context.Context, rawURL string, etag string) (io.ReadCloser, string, bool, error) {
	var header http.Header
	if etag != "" {
		header = http.Header{"If-None-Match": []string{etag}}
	}

	resp, err := f.get(ctx, rawURL, header)
	if err != nil {
		return nil, "", false, err
	}

	switch resp.StatusCode {
	case http.StatusNotModified:
		_ = resp.Body.Close()
		return nil, etag, false, nil
	case http.StatusOK:
		return resp.Body, resp.Header.Get("ETag"), true, nil
	default:
		_ = resp.Body.Close()
		return nil, "", false, eris.Errorf("fetcher: unexpected status %d from %s", resp.StatusCode, rawURL)
	}
}
