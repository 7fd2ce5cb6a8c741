package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/noise-cli/internal/resilience"
)

func newTestFetcher(maxRetries int) *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:  "test-agent",
		Timeout:    5 * time.Second,
		MaxRetries: maxRetries,
		RatePerSec: 1000,
		Backoff:    time.Millisecond,
	})
}

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	f := newTestFetcher(1)
	resp, err := f.Get(context.Background(), srv.URL+"/15490?start=2025-05-07")
	require.NoError(t, err)
	defer resp.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, resp.Attempts)
	assert.True(t, resp.HasContent())
	assert.NoError(t, resp.Err())

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))
}

func TestRetryOnServerError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("success"))
	}))
	defer srv.Close()

	f := newTestFetcher(3)

	resp, err := f.Get(context.Background(), srv.URL+"/retry")
	require.NoError(t, err)
	defer resp.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "success", string(data))
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, 3, resp.Attempts)
}

func TestRetryExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(2)

	_, err := f.Get(context.Background(), srv.URL+"/fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all retries exhausted after 2 attempts")
	assert.True(t, resilience.IsTransient(err))
}

func TestSingleAttemptByDefault(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{})
	_, err := f.Get(context.Background(), srv.URL+"/once")
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestGet_NotFoundIsReturnedNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(3)
	resp, err := f.Get(context.Background(), srv.URL+"/missing")
	require.NoError(t, err)
	defer resp.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), attempts.Load())
	assert.False(t, resp.HasContent())

	err = resp.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404 from "+srv.URL+"/missing")
	assert.True(t, errors.Is(err, ErrStatus))
	assert.False(t, resilience.IsTransient(err))
}

func TestGet_NoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := newTestFetcher(1).Get(context.Background(), srv.URL+"/empty")
	require.NoError(t, err)
	defer resp.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.False(t, resp.HasContent())
	assert.NoError(t, resp.Err())
}

func TestRateLimiting(t *testing.T) {
	var mu sync.Mutex
	var reqTimes []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reqTimes = append(reqTimes, time.Now())
		mu.Unlock()
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{
		UserAgent:  "test-agent",
		Timeout:    5 * time.Second,
		MaxRetries: 1,
		RatePerSec: 2,
	})

	ctx := context.Background()
	for range 5 {
		resp, err := f.Get(ctx, srv.URL+"/limited")
		require.NoError(t, err)
		resp.Close()
	}

	// Burst of 2 then ~2-4 req/s: the last of 5 requests cannot land immediately.
	require.Len(t, reqTimes, 5)
	duration := reqTimes[len(reqTimes)-1].Sub(reqTimes[0])
	assert.GreaterOrEqual(t, duration.Milliseconds(), int64(300), "requests should be rate limited")
}

func TestGet_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newTestFetcher(1)
	_, err := f.Get(ctx, srv.URL+"/cancelled")
	require.Error(t, err)
}

func TestGet_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{Timeout: 50 * time.Millisecond, RatePerSec: 1000})
	start := time.Now()
	_, err := f.Get(context.Background(), srv.URL+"/slow")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLimiterFor_PerHost(t *testing.T) {
	f := newTestFetcher(1)
	a := f.limiterFor("http://a.example/x")
	b := f.limiterFor("http://b.example/y")
	again := f.limiterFor("http://a.example/z")

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
	assert.Equal(t, rate.Limit(1000), a.Limit())
}

func TestNewHTTPFetcher_Defaults(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{})
	assert.Equal(t, 30*time.Second, f.opts.Timeout)
	assert.Equal(t, 1, f.opts.MaxRetries)
	assert.Equal(t, float64(20), f.opts.RatePerSec)
	assert.Equal(t, "noise-cli/1.0", f.opts.UserAgent)
}

func TestAdaptiveLimiter_OnSuccess_IncreasesRate(t *testing.T) {
	a := NewAdaptiveLimiter(10, 10)
	a.OnSuccess()
	assert.InDelta(t, 12.0, float64(a.Limit()), 0.001)
}

func TestAdaptiveLimiter_OnRateLimit_DecreasesRate(t *testing.T) {
	a := NewAdaptiveLimiter(10, 10)
	a.OnRateLimit()
	assert.InDelta(t, 5.0, float64(a.Limit()), 0.001)
}

func TestAdaptiveLimiter_OnSuccess_CapsAt2x(t *testing.T) {
	a := NewAdaptiveLimiter(10, 10)
	for range 20 {
		a.OnSuccess()
	}
	assert.InDelta(t, 20.0, float64(a.Limit()), 0.001)
}

func TestAdaptiveLimiter_OnRateLimit_FloorAtQuarter(t *testing.T) {
	a := NewAdaptiveLimiter(10, 10)
	for range 20 {
		a.OnRateLimit()
	}
	assert.InDelta(t, 2.5, float64(a.Limit()), 0.001)
}

func TestDoWithRetry_429_AdaptiveBackoff(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{
		UserAgent:  "test-agent",
		Timeout:    10 * time.Second,
		MaxRetries: 3,
		RatePerSec: 100,
		Backoff:    time.Millisecond,
	})
	lim := f.limiterFor(srv.URL)
	initialRate := lim.Limit()

	resp, err := f.Get(context.Background(), srv.URL+"/data")
	require.NoError(t, err)
	defer resp.Close()

	data, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, int32(3), attempts.Load())

	// 2x OnRateLimit and 1x OnSuccess: 100 -> 50 -> 25 -> 30
	assert.Less(t, float64(lim.Limit()), float64(initialRate))
}
