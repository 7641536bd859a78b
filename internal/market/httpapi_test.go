package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborview-capital/regionscan/internal/resilience"
)

func fastRetry(maxAttempts int) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2,
	}
}

func TestAPITrend(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/regions/porto-metro/trend", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"region":"porto-metro","trend_pct":8.5}`))
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, "sekrit", WithAPIRetry(fastRetry(2)))

	trend, ok, err := api.Trend(context.Background(), "porto-metro")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 8.5, trend.Pct, 1e-9)
	assert.Equal(t, "api", trend.Source)
}

func TestAPITrendUnknownRegion(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such region", http.StatusNotFound)
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, "", WithAPIRetry(fastRetry(3)))

	_, ok, err := api.Trend(context.Background(), "atlantis")
	require.NoError(t, err, "a 404 is a miss, not a failure")
	assert.False(t, ok)
}

func TestAPITrendRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"region":"porto-metro","trend_pct":3.0}`))
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, "", WithAPIRetry(fastRetry(3)))

	trend, ok, err := api.Trend(context.Background(), "porto-metro")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 3.0, trend.Pct, 1e-9)
	assert.Equal(t, int32(2), hits.Load())
}

func TestAPITrendDoesNotRetryClientError(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, "", WithAPIRetry(fastRetry(3)))

	_, _, err := api.Trend(context.Background(), "porto-metro")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), hits.Load())
}

func TestAPITrendMalformedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"trend_pct": "eight"}`))
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, "", WithAPIRetry(fastRetry(2)))

	_, _, err := api.Trend(context.Background(), "porto-metro")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestAPIBreakerOpensAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, "",
		WithAPIRetry(fastRetry(1)),
		WithAPIBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 2,
			ResetTimeout:     time.Hour,
			OnStateChange:    func(resilience.CircuitState, resilience.CircuitState) {},
		}),
	)

	for range 2 {
		_, _, err := api.Trend(context.Background(), "porto-metro")
		require.Error(t, err)
	}
	require.Equal(t, int32(2), hits.Load())

	_, _, err := api.Trend(context.Background(), "porto-metro")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, int32(2), hits.Load(), "an open circuit must not reach the server")
}

func TestAPIAvailability(t *testing.T) {
	t.Parallel()

	assert.False(t, NewAPI("", "").Available())
	assert.True(t, NewAPI("https://trends.example.com", "").Available())

	var nilAPI *API
	assert.False(t, nilAPI.Available())
}
